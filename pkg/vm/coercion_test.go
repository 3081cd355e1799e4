package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToStringToNumberRoundTrip(t *testing.T) {
	for _, n := range []string{"0", "1", "-1", "42", "-100", "3.5", "-0.25"} {
		got := run(t, "echo to_number(to_string("+n+"));")
		assert.Equal(t, n, strings.TrimSpace(got), n)
	}
}

func TestToBool(t *testing.T) {
	src := `
echo to_bool(1);
echo to_bool(0);
echo to_bool("x");
echo to_bool(nil);
`
	assert.Equal(t, "true\ntrue\ntrue\nfalse\n", run(t, src))
}

func TestToIntTruncates(t *testing.T) {
	assert.Equal(t, "3", strings.TrimSpace(run(t, "echo to_int(3.9);")))
}

func TestAbs(t *testing.T) {
	assert.Equal(t, "4.5", strings.TrimSpace(run(t, "echo abs(-4.5);")))
}

func TestToListFromDictAndString(t *testing.T) {
	src := `
echo to_list("ab");
echo to_list({"a": 1});
echo to_list(5);
`
	assert.Equal(t, "['a', 'b']\n[['a', 1]]\n[5]\n", run(t, src))
}

func TestToDictFromScalar(t *testing.T) {
	assert.Equal(t, "{0: 5}", strings.TrimSpace(run(t, `echo to_dict(5);`)))
}

func TestToBinOctHexRoundTrip(t *testing.T) {
	src := `
echo to_bin(10);
echo to_oct(10);
echo to_hex(255);
echo to_number(to_bin(10));
echo to_number(to_oct(10));
echo to_number(to_hex(255));
`
	assert.Equal(t, "0b1010\n0c12\n0xff\n10\n10\n255\n", run(t, src))
}

func TestCoercionHooksOverrideBuiltin(t *testing.T) {
	src := `
class Meters {
  def Meters(n) {
    self.n = n;
  }
  def @to_number() {
    return self.n;
  }
  def @to_string() {
    return "" + self.n + "m";
  }
  def @to_bool() {
    return self.n > 0;
  }
}
var m = Meters(3);
echo to_number(m);
echo to_string(m);
echo to_bool(m);
echo to_bool(Meters(0));
`
	assert.Equal(t, "3\n3m\ntrue\nfalse\n", run(t, src))
}
