package stdb

import (
	"encoding/hex"
	"errors"
	"testing"
)

type testShape interface{ isTestShape() }

type testCircle struct {
	R float64
}

type testRect struct {
	W, H uint16
}

func (testCircle) isTestShape() {}
func (testRect) isTestShape() {}

type testColor uint8

const (
	testRed testColor = iota
	testGreen
)

func init() {
	RegisterSum[testShape]("Shape", Case[testCircle]("circle"), Case[testRect]("rect"))
	RegisterEnum[testColor]("Color", "red", "green")
}

type drawing struct {
	Name   string
	Shapes []testShape
	Tint   *testColor
	Hidden bool     `stdb:"-"`
	Tags   []string `stdb:"labels"`
	Owner  Identity
	Size   [2]uint8
	secret int
}

func TestMarshal_roundTrip(t *testing.T) {
	green := testGreen
	d := drawing{
		Name:   "sketch",
		Shapes: []testShape{testCircle{R: 1.5}, testRect{W: 2, H: 3}},
		Tint:   &green,
		Tags:   []string{"a", "b"},
		Owner:  Identity{31: 1},
		Size:   [2]uint8{4, 5},
	}
	data := must(Marshal(d))

	var back drawing
	ensure(Unmarshal(data, &back))
	deepEq(t, back, d)

	// the reflected type describes the same bytes
	ts := NewTypespace()
	ty := must(TypeOf[drawing](ts))
	ensure(ts.Validate())
	v := must(Decode(ts, ty, data))
	deepEq(t, must(Encode(ts, ty, v)), data)

	pt := must(ts.Resolve(ty))
	var names []string
	for _, e := range pt.Elements {
		names = append(names, e.Name)
	}
	deepEq(t, names, []string{"Name", "Shapes", "Tint", "labels", "Owner", "Size"})
}

func TestMarshal_optionBytes(t *testing.T) {
	deepEq(t, hex.EncodeToString(must(Marshal((*uint32)(nil)))), "00")
	n := uint32(7)
	deepEq(t, hex.EncodeToString(must(Marshal(&n))), "0107000000")

	var p *uint32
	ensure(Unmarshal([]byte{1, 9, 0, 0, 0}, &p))
	deepEq(t, *p, uint32(9))
	ensure(Unmarshal([]byte{0}, &p))
	deepEq(t, p, (*uint32)(nil))
}

type shapeHolder struct {
	S testShape
}

func TestMarshal_sumAndEnumBytes(t *testing.T) {
	h := shapeHolder{S: testRect{W: 1, H: 2}}
	deepEq(t, hex.EncodeToString(must(Marshal(h))), "0101000200")
	deepEq(t, VariantName(h.S), "rect")
	deepEq(t, hex.EncodeToString(must(Marshal(testGreen))), "01")
	deepEq(t, VariantName(testRed), "red")

	var c testColor
	if err := Unmarshal([]byte{2}, &c); !errors.Is(err, ErrInvalidTag) {
		t.Errorf("** enum tag 2: got %v, wanted %v", err, ErrInvalidTag)
	}
	var back shapeHolder
	ensure(Unmarshal([]byte{0, 0, 0, 0, 0, 0, 0, 0xf8, 0x3f}, &back))
	deepEq(t, back.S, testShape(testCircle{R: 1.5}))
	if err := Unmarshal([]byte{2, 0, 0}, &back); !errors.Is(err, ErrInvalidTag) {
		t.Errorf("** sum tag 2: got %v, wanted %v", err, ErrInvalidTag)
	}

	if _, err := Marshal(shapeHolder{}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("** nil sum: got %v, wanted %v", err, ErrTypeMismatch)
	}
}

func TestUnmarshal_errors(t *testing.T) {
	var n uint16
	if err := Unmarshal([]byte{1, 2, 3}, &n); !errors.Is(err, ErrTrailingBytes) {
		t.Errorf("** got %v, wanted %v", err, ErrTrailingBytes)
	}
	if err := Unmarshal([]byte{1, 2}, n); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("** got %v, wanted %v", err, ErrTypeMismatch)
	}
	var size [2]uint8
	if err := Unmarshal([]byte{3, 0, 0, 0, 1, 2, 3}, &size); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("** got %v, wanted %v", err, ErrLengthMismatch)
	}
	if _, err := Marshal(make(chan int)); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("** got %v, wanted %v", err, ErrUnsupportedType)
	}
	if _, err := Marshal(nil); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("** got %v, wanted %v", err, ErrTypeMismatch)
	}
}

type notAShape struct{}

func TestRegisterSum_errors(t *testing.T) {
	err := panicErr(func() { RegisterSum[testCircle]("Bad", Case[testCircle]("c")) })
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("** non-interface sum: got %v, wanted %v", err, ErrUnsupportedType)
	}
	err = panicErr(func() { RegisterSum[testShape]("Bad", Case[notAShape]("x")) })
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("** foreign variant: got %v, wanted %v", err, ErrUnsupportedType)
	}
	err = panicErr(func() { RegisterSum[testShape]("Bad", Case[testCircle]("a"), Case[testCircle]("b")) })
	var re *RegistrationError
	if !errors.As(err, &re) || re.Column != "b" {
		t.Errorf("** duplicate variant: got %v", err)
	}
}
