package stdlib

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/smog/pkg/compiler"
	"github.com/kristofer/smog/pkg/module"
	"github.com/kristofer/smog/pkg/value"
	"github.com/kristofer/smog/pkg/vm"
)

func run(t *testing.T, argv []string, src string) string {
	t.Helper()
	interner := value.NewInterner()
	v := vm.New(interner)
	v.Argv = argv

	loader := module.New(interner, t.TempDir())
	loader.Register("_math", Math)
	loader.Register("_os", OS)
	loader.Register("_reflect", Reflect)
	v.Loader = loader

	fn, err := compiler.Compile(src, "test", interner)
	require.NoError(t, err)
	var out bytes.Buffer
	v.Stdout = &out
	require.NoError(t, v.Interpret(fn))
	return out.String()
}

func TestMathModule(t *testing.T) {
	src := `
import _math;
echo _math.sqrt(16);
echo _math.abs(-3);
echo _math.pow(2, 8);
echo _math.floor(3.7);
echo _math.ceil(3.2);
`
	assert.Equal(t, "4\n3\n256\n3\n4\n", run(t, nil, src))
}

func TestMathPiConstant(t *testing.T) {
	got := run(t, nil, "import _math; echo _math.PI > 3.14;")
	assert.Equal(t, "true", strings.TrimSpace(got))
}

func TestOSArgs(t *testing.T) {
	got := run(t, []string{"a", "b"}, "import _os; echo _os.args.len();")
	assert.Equal(t, "2", strings.TrimSpace(got))
}

func TestOSEnvMissing(t *testing.T) {
	got := run(t, nil, `import _os; echo _os.env("SMOG_DEFINITELY_UNSET_VAR");`)
	assert.Equal(t, "nil", strings.TrimSpace(got))
}

func TestReflectTypeof(t *testing.T) {
	src := `
import _reflect;
echo _reflect.typeof(1);
echo _reflect.typeof("s");
echo _reflect.typeof(nil);
`
	assert.Equal(t, "number\nstring\nnil\n", run(t, nil, src))
}

func TestReflectIsinstance(t *testing.T) {
	src := `
import _reflect;
class Animal {}
class Dog < Animal {}
var d = Dog();
echo _reflect.isinstance(d, Animal);
echo _reflect.isinstance(d, Dog);
echo _reflect.isinstance(1, Dog);
`
	assert.Equal(t, "true\ntrue\nfalse\n", run(t, nil, src))
}
