// Command rvm32 is the toolchain's command-line front end: assemble
// source into an object file, run an object file to completion, or open
// the terminal inspector over an object file.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashenford/rvm32/binfmt"
	"github.com/ashenford/rvm32/config"
	"github.com/ashenford/rvm32/encoder"
	"github.com/ashenford/rvm32/hostio"
	"github.com/ashenford/rvm32/ident"
	"github.com/ashenford/rvm32/inspector"
	"github.com/ashenford/rvm32/isa"
	"github.com/ashenford/rvm32/lexer"
	"github.com/ashenford/rvm32/loader"
	"github.com/ashenford/rvm32/parser"
	"github.com/ashenford/rvm32/vm"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run builds and executes the root command, returning the process's final
// exit status: 0 on success, 1 on any toolchain error, or (for the run
// subcommand specifically) the assembled program's own SYSFN-0 exit code.
func run(args []string) int {
	exitCode := 0
	root := newRootCmd(&exitCode)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func newRootCmd(exitCode *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "rvm32",
		Short:         "Assembler and virtual machine for the rvm32 register machine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newAsmCmd(), newRunCmd(exitCode), newInspectCmd())
	return root
}

func newAsmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "asm SOURCE OUTPUT",
		Short: "Assemble SOURCE into an object file at OUTPUT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return assemble(args[0], args[1])
		},
	}
}

func assemble(sourcePath, outputPath string) error {
	src, err := os.ReadFile(sourcePath) // #nosec G304 -- user-specified source path
	if err != nil {
		return fmt.Errorf("%s: %w", sourcePath, err)
	}

	table := ident.NewTable()
	isa.PopulateTable(table)

	lx := lexer.New(string(src))
	nodes, err := parser.Parse(lx, table)
	if err != nil {
		return fileDiagnostic(sourcePath, err)
	}

	program, err := encoder.Compile(nodes, table.Len())
	if err != nil {
		return fileDiagnostic(sourcePath, err)
	}

	out, err := binfmt.Serialize(program)
	if err != nil {
		return fmt.Errorf("%s: %w", sourcePath, err)
	}

	if err := os.WriteFile(outputPath, out, 0600); err != nil {
		return fmt.Errorf("%s: %w", outputPath, err)
	}
	return nil
}

// fileDiagnostic formats a parse or compile failure as "path:line:
// message", pulling the line number out of the toolchain's tagged error
// types where one is available.
func fileDiagnostic(path string, err error) error {
	switch e := err.(type) {
	case *parser.Error:
		return fmt.Errorf("%s:%d: %s", path, e.Line, e.Kind)
	case *encoder.Error:
		return fmt.Errorf("%s:%d: %s", path, e.Line, e.Kind)
	default:
		return fmt.Errorf("%s: %v", path, err)
	}
}

func newRunCmd(exitCode *int) *cobra.Command {
	var cfgPath string
	var inspectOnFault bool

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Load and run a compiled object file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := runObjectFile(args[0], cfgPath, inspectOnFault)
			if err != nil {
				return err
			}
			*exitCode = int(status)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config.toml (default: platform config dir)")
	cmd.Flags().BoolVar(&inspectOnFault, "inspect", false, "open the terminal inspector on the post-mortem VM state if execution traps")
	return cmd
}

func loadConfig(cfgPath string) (*config.Config, error) {
	if cfgPath == "" {
		return config.Load()
	}
	return config.LoadFrom(cfgPath)
}

// runObjectFile loads path and runs it to halt or trap, honoring cfg's
// step ceiling and optional trace file — CLI-level operational limits the
// bare vm.VM does not itself impose.
func runObjectFile(path, cfgPath string, inspectOnFault bool) (uint32, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return 0, err
	}

	host := hostio.NewStdio(os.Stdin, os.Stdout)
	machine, err := loader.FromFile(path, host)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	var trace *bufio.Writer
	if cfg.Run.TraceFile != "" {
		f, err := os.Create(cfg.Run.TraceFile) // #nosec G304 -- user-configured trace output path
		if err != nil {
			return 0, fmt.Errorf("opening trace file: %w", err)
		}
		defer f.Close()
		trace = bufio.NewWriter(f)
		defer trace.Flush()
	}

	status, runErr := runToHalt(machine, cfg.Run.MaxSteps, trace)
	if runErr != nil {
		reportFault(os.Stderr, path, machine, runErr)
		if inspectOnFault {
			if ierr := inspectFault(machine, runErr); ierr != nil {
				fmt.Fprintf(os.Stderr, "inspector: %v\n", ierr)
			}
		}
		return 0, runErr
	}
	return status, nil
}

// runToHalt steps machine until it halts, traps, or exceeds maxSteps (0
// meaning unbounded), optionally logging the fetched PC of every
// instruction to trace.
func runToHalt(machine *vm.VM, maxSteps uint64, trace *bufio.Writer) (uint32, error) {
	var steps uint64
	for {
		if maxSteps != 0 && steps >= maxSteps {
			return 0, fmt.Errorf("exceeded configured step limit (%d)", maxSteps)
		}
		if trace != nil {
			fmt.Fprintf(trace, "pc=0x%08X\n", machine.PC)
		}
		status, halted, err := machine.Step()
		steps++
		if err != nil {
			return 0, err
		}
		if halted {
			return status, nil
		}
	}
}

// reportFault writes a diagnostic naming whichever faulting value applies
// to the trap: pc for InvalidPc, address for InvalidAddr, the raw
// instruction word for UnknownInst, or the syscall number for
// UnknownSysfn.
func reportFault(w *os.File, path string, machine *vm.VM, err error) {
	fmt.Fprintf(w, "%s: runtime error at pc=0x%08X: %v\n", path, machine.PC, err)
}

func inspectFault(machine *vm.VM, runErr error) error {
	snap := &inspector.FaultSnapshot{
		Reason: runErr.Error(),
		PC:     machine.PC,
		Regs:   machine.Regs,
		Mem:    machine.Mem.Bytes(),
	}
	if verr, ok := runErr.(*vm.Error); ok && verr.Kind == vm.InvalidAddr {
		snap.FaultAddr = verr.Addr
		snap.HasAddr = true
	}
	return inspector.NewFaultInspector(snap).Run()
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Open the terminal inspector over an object file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectObjectFile(args[0])
		},
	}
}

func inspectObjectFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- user-specified object file path
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	snap, err := inspector.NewObjectSnapshot(path, data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return inspector.NewObjectInspector(snap).Run()
}
