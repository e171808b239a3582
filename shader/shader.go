// Package shader checks WGSL shaders with naga and reports compiler
// diagnostics through a debug-output host, so shader problems reach the
// same sink as driver messages.
package shader

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/gogpu/gpudebug"
)

// Ids of shader compiler events.
const (
	IDParseError      uint32 = 1
	IDLowerError      uint32 = 2
	IDValidationError uint32 = 3
	IDCodegenError    uint32 = 4
	IDCompiled        uint32 = 5
)

// Inserter accepts application-inserted debug messages.
// backend/wgpu.Host implements it.
type Inserter interface {
	Insert(source gpudebug.Source, typ gpudebug.Type, id uint32, severity gpudebug.Severity, text string)
}

// Checker compiles WGSL to SPIR-V, reporting every failure as a
// DebugSourceShaderCompiler event.
type Checker struct {
	host       Inserter
	opts       spirv.Options
	skipVerify bool

	// Back-end stages; naga's unless replaced in tests.
	validateIR func(*ir.Module) ([]ir.ValidationError, error)
	generate   func(*ir.Module, spirv.Options) ([]byte, error)
}

// NewChecker returns a Checker reporting to host.
func NewChecker(host Inserter) *Checker {
	return &Checker{
		host:       host,
		opts:       spirv.Options{Version: spirv.Version1_3},
		validateIR: naga.Validate,
		generate:   naga.GenerateSPIRV,
	}
}

// WithDebugInfo returns a copy of c that emits SPIR-V debug names.
func (c *Checker) WithDebugInfo() *Checker {
	cp := *c
	cp.opts.Debug = true
	return &cp
}

// WithoutValidation returns a copy of c that skips IR validation.
func (c *Checker) WithoutValidation() *Checker {
	cp := *c
	cp.skipVerify = true
	return &cp
}

// Check compiles source, named name in diagnostics. Each failed stage inserts
// a high-severity error event and returns the wrapped error; a successful
// compile inserts a notification.
func (c *Checker) Check(name, source string) ([]byte, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, c.fail(IDParseError, name, "parse", err)
	}

	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, c.fail(IDLowerError, name, "lower", err)
	}

	if !c.skipVerify {
		if err := c.validate(name, module); err != nil {
			return nil, err
		}
	}

	code, err := c.generate(module, c.opts)
	if err != nil {
		return nil, c.fail(IDCodegenError, name, "codegen", err)
	}

	c.report(IDCompiled, gpudebug.SeverityNotification,
		fmt.Sprintf("shader %s: compiled to %d bytes of SPIR-V", name, len(code)))
	return code, nil
}

// validate reports every validation error, not only the first.
func (c *Checker) validate(name string, module *ir.Module) error {
	verrs, err := c.validateIR(module)
	if err != nil {
		return c.fail(IDValidationError, name, "validate", err)
	}
	for _, ve := range verrs {
		c.report(IDValidationError, gpudebug.SeverityHigh, fmt.Sprintf("shader %s: %s", name, ve.Error()))
	}
	if len(verrs) > 0 {
		return fmt.Errorf("shader %s: validation failed: %w", name, verrs[0])
	}
	return nil
}

func (c *Checker) fail(id uint32, name, stage string, err error) error {
	err = fmt.Errorf("shader %s: %s: %w", name, stage, err)
	c.report(id, gpudebug.SeverityHigh, err.Error())
	return err
}

func (c *Checker) report(id uint32, severity gpudebug.Severity, text string) {
	if c.host == nil {
		return
	}
	typ := gpudebug.TypeError
	if severity == gpudebug.SeverityNotification {
		typ = gpudebug.TypeOther
	}
	c.host.Insert(gpudebug.SourceShaderCompiler, typ, id, severity, text)
}
