package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/compiler"
	"github.com/kristofer/smog/pkg/module"
	"github.com/kristofer/smog/pkg/stdlib"
	"github.com/kristofer/smog/pkg/value"
	"github.com/kristofer/smog/pkg/vm"
)

const version = "0.1.0"

// flags gathers the hand-parsed boolean switches spec 4.11 lists, in the
// same style as the teacher's manual os.Args walk rather than adopting a
// flags package for a handful of booleans.
type flags struct {
	trace     bool
	gctrace   bool
	stackdump bool
	noecho    bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fl, rest := parseFlags(args)

	if len(rest) == 0 {
		runREPL(fl)
		return 0
	}

	switch rest[0] {
	case "version", "-v", "--version":
		fmt.Printf("smog version %s\n", version)
		return 0
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "repl":
		runREPL(fl)
		return 0
	case "run":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			printUsage()
			return 1
		}
		return runFile(fl, rest[1], rest[2:])
	case "compile":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			fmt.Fprintln(os.Stderr, "\nUsage: smog compile <input.so> [output.sgb]")
			return 1
		}
		out := ""
		if len(rest) >= 3 {
			out = rest[2]
		}
		return compileFile(rest[1], out)
	case "disassemble", "disasm":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			fmt.Fprintln(os.Stderr, "\nUsage: smog disassemble <file>")
			return 1
		}
		return disassembleFile(rest[1])
	default:
		return runFile(fl, rest[0], rest[1:])
	}
}

// parseFlags pulls recognized -flag tokens out of args, in any position,
// and returns the remaining positional arguments untouched.
func parseFlags(args []string) (flags, []string) {
	var fl flags
	rest := make([]string, 0, len(args))
	for _, a := range args {
		switch a {
		case "-trace":
			fl.trace = true
		case "-gctrace":
			fl.gctrace = true
		case "-stackdump":
			fl.stackdump = true
		case "-noecho":
			fl.noecho = true
		default:
			rest = append(rest, a)
		}
	}
	return fl, rest
}

func printUsage() {
	fmt.Println("smog - a small dynamically-typed scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  smog                          Start interactive REPL")
	fmt.Println("  smog [file] [args...]         Run a .so or .sgb file")
	fmt.Println("  smog run [file] [args...]     Run a .so or .sgb file")
	fmt.Println("  smog compile <in> [out]       Compile .so to .sgb bytecode")
	fmt.Println("  smog disassemble <file>       Disassemble .sgb bytecode file")
	fmt.Println("  smog repl                     Start interactive REPL")
	fmt.Println("  smog version                  Show version")
	fmt.Println("  smog help                     Show this help")
	fmt.Println("\nFlags:")
	fmt.Println("  -trace       dump each executed opcode")
	fmt.Println("  -gctrace     accepted; has no effect")
	fmt.Println("  -stackdump   print the full frame stack on an uncaught exception")
	fmt.Println("  -noecho      accepted; has no effect (the REPL does not echo values)")
	fmt.Println("\nFile Extensions:")
	fmt.Println("  .so     Source code files (text)")
	fmt.Println("  .sgb    Compiled bytecode files (binary)")
}

// newVM wires a fresh VM with the interner-shared module loader and the
// three native stdlib modules, ready to run a script rooted at scriptDir.
func newVM(scriptDir string, argv []string, fl flags) (*vm.VM, *value.Interner) {
	interner := value.NewInterner()
	v := vm.New(interner)
	v.Argv = argv

	loader := module.New(interner, scriptDir)
	loader.Register("_math", stdlib.Math)
	loader.Register("_os", stdlib.OS)
	loader.Register("_reflect", stdlib.Reflect)
	v.Loader = loader

	if fl.trace {
		v.Trace = func(line string) { fmt.Fprintln(os.Stderr, line) }
	}
	return v, interner
}

func runFile(fl flags, filename string, argv []string) int {
	if filepath.Ext(filename) == ".sgb" {
		return runBytecodeFile(fl, filename, argv)
	}
	return runSourceFile(fl, filename, argv)
}

func runSourceFile(fl flags, filename string, argv []string) int {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return 1
	}

	v, interner := newVM(filepath.Dir(filename), argv, fl)
	fn, err := compiler.Compile(string(data), filename, interner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		return 1
	}
	return interpret(v, fn, fl)
}

func runBytecodeFile(fl flags, filename string, argv []string) int {
	v, interner := newVM(filepath.Dir(filename), argv, fl)

	file, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return 1
	}
	defer file.Close()

	blob, err := bytecode.Decode(file, interner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		return 1
	}
	fn := &value.Function{Blob: blob, Kind: value.FuncScript}
	return interpret(v, fn, fl)
}

// interpret runs fn to completion, recovering a Go panic the way
// jcorbin/gothird's internal/panicerr wraps a goroutine body (spec 4.9):
// a panic inside the VM loop is the stand-in for a host allocator
// failure, classified and mapped to exit code 12 rather than crashing.
func interpret(v *vm.VM, fn *value.Function, fl flags) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			code = 12
		}
	}()

	err := v.Interpret(fn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		if fl.stackdump {
			if re, ok := err.(*vm.RuntimeError); ok {
				for _, f := range re.StackTrace {
					fmt.Fprintf(os.Stderr, "  at %s (line %d)\n", f.Name, f.SourceLine)
				}
			}
		}
		return 1
	}
	return 0
}

func compileFile(inputFile, outputFile string) int {
	if outputFile == "" {
		if filepath.Ext(inputFile) == ".so" {
			outputFile = inputFile[:len(inputFile)-len(".so")] + ".sgb"
		} else {
			outputFile = inputFile + ".sgb"
		}
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return 1
	}

	interner := value.NewInterner()
	fn, err := compiler.Compile(string(data), inputFile, interner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		return 1
	}

	outFile, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		return 1
	}
	defer outFile.Close()

	if err := bytecode.Encode(fn.Blob, outFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing bytecode: %v\n", err)
		return 1
	}
	fmt.Printf("Compiled %s -> %s\n", inputFile, outputFile)
	return 0
}

func disassembleFile(filename string) int {
	interner := value.NewInterner()
	file, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return 1
	}
	defer file.Close()

	blob, err := bytecode.Decode(file, interner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		return 1
	}

	fmt.Printf("=== Bytecode Disassembly: %s ===\n\n", filename)
	fmt.Print(bytecode.Disassemble(blob, filepath.Base(filename)))
	return 0
}

// runREPL starts an interactive read-eval-print loop. Each complete input
// (ended by a blank line) is compiled as its own top-level script sharing
// the REPL's persistent VM, so globals declared in one input remain
// visible to the next (spec 4.6's single globals table, not a fresh one
// per evaluation).
func runREPL(fl flags) {
	fmt.Printf("smog %s\n", version)
	fmt.Println("Type ':help' for help, ':quit' or ':exit' to exit")
	fmt.Println()

	wd, _ := os.Getwd()
	v, interner := newVM(wd, nil, fl)
	scanner := bufio.NewScanner(os.Stdin)

	var buf strings.Builder
	for {
		if buf.Len() == 0 {
			fmt.Print("smog> ")
		} else {
			fmt.Print("....> ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if buf.Len() == 0 {
			switch strings.TrimSpace(line) {
			case ":quit", ":exit":
				fmt.Println("Goodbye!")
				return
			case ":help":
				printREPLHelp()
				continue
			case "":
				continue
			}
		}

		buf.WriteString(line)
		buf.WriteString("\n")
		if line != "" {
			continue
		}

		input := strings.TrimSpace(buf.String())
		buf.Reset()
		if input == "" {
			continue
		}
		evalREPL(v, interner, input, fl)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
}

func evalREPL(v *vm.VM, interner *value.Interner, input string, fl flags) {
	fn, err := compiler.Compile(input, "<repl>", interner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", errors.Cause(err))
		return
	}
	if err := v.Interpret(fn); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		return
	}
}

func printREPLHelp() {
	fmt.Println("smog REPL help")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  :help     Show this help message")
	fmt.Println("  :quit     Exit the REPL")
	fmt.Println("  :exit     Exit the REPL")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  - Enter statements and press Enter")
	fmt.Println("  - A blank line submits the buffered input for evaluation")
	fmt.Println("  - Variables and functions declared at the top level persist")
	fmt.Println()
}
