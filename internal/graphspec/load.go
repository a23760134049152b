package graphspec

import (
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ddflow/internal/program"
)

// Load reads a description by file extension: .cue (or a directory of CUE
// files) through LoadCUE, .yaml, .yml and .json through LoadYAML.
func Load(path string) (*ProgramDesc, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	if info.IsDir() {
		return LoadCUE(path)
	}
	switch filepath.Ext(path) {
	case ".cue":
		return LoadCUE(path)
	case ".yaml", ".yml", ".json":
		return LoadYAML(path)
	default:
		return nil, errors.Newf("load %s: unsupported file extension", path)
	}
}

// LoadGraph loads and compiles the description at path.
func LoadGraph(path string) (*program.Graph, error) {
	desc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Compile(desc)
}

// LoadCUE evaluates a CUE file or package directory and decodes its
// top-level "program" field, or the whole value when that field is absent.
func LoadCUE(path string) (*ProgramDesc, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, errors.Newf("load %s: no CUE instances", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return decodeCUE(v)
}

// LoadCUEString evaluates CUE source held in memory.
func LoadCUEString(src string) (*ProgramDesc, error) {
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return decodeCUE(v)
}

func decodeCUE(v cue.Value) (*ProgramDesc, error) {
	if p := v.LookupPath(cue.ParsePath("program")); p.Exists() {
		v = p
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	var desc ProgramDesc
	if err := v.Decode(&desc); err != nil {
		return nil, formatCUEError(err)
	}
	return &desc, nil
}

// formatCUEError keeps the position of the first CUE error.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return &CompileError{Field: "cue", Message: first.Error()}
}

// LoadYAML decodes a YAML (or JSON) description. Unknown keys are errors.
func LoadYAML(path string) (*ProgramDesc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var desc ProgramDesc
	if err := dec.Decode(&desc); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &desc, nil
}
