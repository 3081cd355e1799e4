package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/smog/pkg/compiler"
	"github.com/kristofer/smog/pkg/value"
)

// run compiles src and interprets it against a fresh VM, returning whatever
// it wrote via echo.
func run(t *testing.T, src string) string {
	t.Helper()
	interner := value.NewInterner()
	fn, err := compiler.Compile(src, "test", interner)
	require.NoError(t, err, "compile(%q)", src)
	v := New(interner)
	var out bytes.Buffer
	v.Stdout = &out
	require.NoError(t, v.Interpret(fn), "interpret(%q)", src)
	return out.String()
}

func TestEchoNumberLiteral(t *testing.T) {
	assert.Equal(t, "42", strings.TrimSpace(run(t, "echo 42;")))
}

func TestEchoStringLiteral(t *testing.T) {
	assert.Equal(t, "hello", strings.TrimSpace(run(t, `echo "hello";`)))
}

func TestArithmetic(t *testing.T) {
	for _, tt := range []struct{ src, want string }{
		{"echo 1 + 2;", "3"},
		{"echo 10 - 4;", "6"},
		{"echo 3 * 4;", "12"},
		{"echo 7 / 2;", "3.5"},
		{"echo 2 ** 10;", "1024"},
	} {
		assert.Equal(t, tt.want, strings.TrimSpace(run(t, tt.src)), tt.src)
	}
}

func TestGlobalsPersistAcrossStatements(t *testing.T) {
	assert.Equal(t, "15", strings.TrimSpace(run(t, "var x = 10; x = x + 5; echo x;")))
}

func TestIfElse(t *testing.T) {
	src := `
var x = 5;
if (x > 3) {
  echo "big";
} else {
  echo "small";
}
`
	assert.Equal(t, "big", strings.TrimSpace(run(t, src)))
}

func TestWhileLoop(t *testing.T) {
	src := `
var i = 0;
var sum = 0;
while (i < 5) {
  sum = sum + i;
  i = i + 1;
}
echo sum;
`
	assert.Equal(t, "10", strings.TrimSpace(run(t, src)))
}

func TestFunctionCallAndReturn(t *testing.T) {
	src := `
def add(a, b) {
  return a + b;
}
echo add(3, 4);
`
	assert.Equal(t, "7", strings.TrimSpace(run(t, src)))
}

func TestClosureCapturesUpvalue(t *testing.T) {
	src := `
def makeCounter() {
  var n = 0;
  def inc() {
    n = n + 1;
    return n;
  }
  return inc;
}
var c = makeCounter();
c();
echo c();
`
	assert.Equal(t, "2", strings.TrimSpace(run(t, src)))
}

func TestClassInstanceMethod(t *testing.T) {
	src := `
class Point {
  def Point(x, y) {
    self.x = x;
    self.y = y;
  }
  def sum() {
    return self.x + self.y;
  }
}
var p = Point(3, 4);
echo p.sum();
`
	assert.Equal(t, "7", strings.TrimSpace(run(t, src)))
}

func TestInheritanceAndSuper(t *testing.T) {
	src := `
class Animal {
  def speak() {
    return "...";
  }
}
class Dog < Animal {
  def speak() {
    return "woof " + parent.speak();
  }
}
echo Dog().speak();
`
	assert.Equal(t, "woof ...", strings.TrimSpace(run(t, src)))
}

func TestListIndexAndLen(t *testing.T) {
	src := `
var xs = [1, 2, 3];
echo xs[1];
echo xs.len();
`
	assert.Equal(t, "2\n3\n", run(t, src))
}

func TestDictAccess(t *testing.T) {
	src := `
var d = {"a": 1, "b": 2};
echo d["a"] + d["b"];
`
	assert.Equal(t, "3", strings.TrimSpace(run(t, src)))
}
