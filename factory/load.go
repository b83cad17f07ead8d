package factory

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/warp/epr-engine/engine"
)

// LoadRates parses every .yaml, .yml and .json file at the root of fsys,
// in file name order.
func LoadRates(fsys fs.FS) ([]engine.RateEntry, error) {
	var all []engine.RateEntry
	err := eachDocument(fsys, func(name string, data []byte) error {
		entries, err := ParseRates(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		all = append(all, entries...)
		return nil
	})
	return all, err
}

// LoadRuleSets parses every rule set document at the root of fsys.
func LoadRuleSets(fsys fs.FS) ([]*DeclaredRuleSet, error) {
	var all []*DeclaredRuleSet
	err := eachDocument(fsys, func(name string, data []byte) error {
		rs, err := ParseRuleSet(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		all = append(all, rs)
		return nil
	})
	return all, err
}

// InstallRates loads rate files into a schedule.
func InstallRates(fsys fs.FS, schedule *engine.RateSchedule) (int, error) {
	entries, err := LoadRates(fsys)
	if err != nil {
		return 0, err
	}
	if err := schedule.AddAll(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// InstallRuleSets loads rule set files into a registry.
func InstallRuleSets(fsys fs.FS, registry *engine.RuleSetRegistry) (int, error) {
	sets, err := LoadRuleSets(fsys)
	if err != nil {
		return 0, err
	}
	for _, rs := range sets {
		if err := registry.Register(rs); err != nil {
			return 0, err
		}
	}
	return len(sets), nil
}

func eachDocument(fsys fs.FS, fn func(name string, data []byte) error) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := fn(name, data); err != nil {
			return err
		}
	}
	return nil
}
