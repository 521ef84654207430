package gate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"PortfolioSentinel/internal/model"
)

// LoadState reads the gate state from a JSON file. Reports found=false with a
// zero state if the file doesn't exist.
func LoadState(filePath string) (state *model.GateState, found bool, err error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.GateState{LastEmitted: map[string]model.Emission{}}, false, nil
		}
		return nil, false, err
	}
	var s model.GateState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, err
	}
	if s.LastEmitted == nil {
		s.LastEmitted = map[string]model.Emission{}
	}
	return &s, true, nil
}

// SaveState writes the gate state to a JSON file, replacing it atomically.
func SaveState(filePath string, state *model.GateState) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
