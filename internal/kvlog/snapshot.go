package kvlog

import (
	"os"

	"github.com/sugawarayuuta/sonnet"
)

// DumpSnapshotJSON marshals data with sonnet and writes it to path,
// truncating any existing file. This is the supplemental --snapshot-json
// diagnostic (SPEC_FULL.md §4.6/§D1); it never touches store state.
func DumpSnapshotJSON(path string, data map[string]string) error {
	buf, err := sonnet.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
