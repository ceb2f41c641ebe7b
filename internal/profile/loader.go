package profile

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed defaults/*.cue
var defaultsFS embed.FS

// LoadDefaults compiles the profiles embedded in the binary. These carry
// conservative values for every supported region; deployments point
// --profiles at a directory to override them with authority-confirmed data.
func LoadDefaults() (Set, error) {
	ctx := cuecontext.New()
	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return nil, fmt.Errorf("read embedded profiles: %w", err)
	}

	// Unify all files into one value, sorted for a stable compile order.
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var combined strings.Builder
	for _, name := range names {
		data, err := defaultsFS.ReadFile("defaults/" + name)
		if err != nil {
			return nil, fmt.Errorf("read embedded profile %s: %w", name, err)
		}
		combined.Write(data)
		combined.WriteString("\n")
	}

	v := ctx.CompileString(combined.String())
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile embedded profiles: %w", err)
	}
	return extract(v)
}

// LoadDir loads profiles from a directory of CUE files using the CUE
// loader, the same way deployments supply authority-confirmed profile data.
func LoadDir(dir string) (Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("profiles directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("profiles path is not a directory: %s", dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("profiles directory: %w", err)
	}
	instances := load.Instances([]string{"."}, &load.Config{Dir: abs})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	return extract(v)
}

// extract walks the "profile" struct and compiles each region entry.
func extract(v cue.Value) (Set, error) {
	profilesVal := v.LookupPath(cue.ParsePath("profile"))
	if !profilesVal.Exists() {
		return nil, fmt.Errorf("no top-level profile struct found")
	}

	iter, err := profilesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}

	set := Set{}
	for iter.Next() {
		p, err := Compile(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("profile.%s: %w", iter.Label(), err)
		}
		if _, dup := set[p.Region]; dup {
			return nil, fmt.Errorf("profile.%s: duplicate region %s", iter.Label(), p.Region)
		}
		set[p.Region] = p
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no profiles defined")
	}
	return set, nil
}
