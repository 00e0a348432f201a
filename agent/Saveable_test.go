package agent

import (
	"bytes"
	"encoding/gob"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// scalar is a Serializable wrapping a single float
type scalar struct {
	value float64
}

func (s *scalar) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(s.value)
	return buf.Bytes(), err
}

func (s *scalar) GobDecode(in []byte) error {
	return gob.NewDecoder(bytes.NewReader(in)).Decode(&s.value)
}

// component is a Saveable with an explicit attribute table
type component struct {
	names []string
	attrs map[string]interface{}
}

func (c *component) SavedAttributes() []string {
	return c.names
}

func (c *component) Attribute(name string) (interface{}, bool) {
	attr, ok := c.attrs[name]
	return attr, ok
}

// newTree builds a two-level attribute tree: a root owning one scalar
// and one sub-component which owns a scalar of its own
func newTree(rootValue, subValue float64) *component {
	sub := &component{
		names: []string{"bias"},
		attrs: map[string]interface{}{
			"bias": &scalar{value: subValue},
		},
	}
	return &component{
		names: []string{"weights", "sub"},
		attrs: map[string]interface{}{
			"weights": &scalar{value: rootValue},
			"sub":     sub,
		},
	}
}

func TestSaveLoadAttributes(t *testing.T) {
	Convey("Given a saved two-level attribute tree", t, func() {
		dir := t.TempDir()
		saved := newTree(1.25, -3.5)
		So(SaveAttributes(saved, dir), ShouldBeNil)

		Convey("When a structurally identical tree loads it", func() {
			loaded := newTree(0, 0)
			err := LoadAttributes(loaded, dir)

			Convey("Every attribute holds its saved value", func() {
				So(err, ShouldBeNil)

				weights := loaded.attrs["weights"].(*scalar)
				So(weights.value, ShouldEqual, 1.25)

				sub := loaded.attrs["sub"].(*component)
				bias := sub.attrs["bias"].(*scalar)
				So(bias.value, ShouldEqual, -3.5)
			})
		})
	})
}

func TestSaveAttributesCycleDetection(t *testing.T) {
	Convey("Given an attribute tree containing a cycle", t, func() {
		root := &component{
			names: []string{"child"},
			attrs: map[string]interface{}{},
		}
		child := &component{
			names: []string{"parent"},
			attrs: map[string]interface{}{"parent": root},
		}
		root.attrs["child"] = child

		Convey("When the tree is saved", func() {
			err := SaveAttributes(root, t.TempDir())

			Convey("The traversal fails instead of recursing forever", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestSaveAttributesMissingAttribute(t *testing.T) {
	Convey("Given an object declaring an attribute it does not have", t,
		func() {
			broken := &component{
				names: []string{"ghost"},
				attrs: map[string]interface{}{},
			}

			Convey("When the object is saved", func() {
				err := SaveAttributes(broken, t.TempDir())

				Convey("The inconsistency is reported as an error", func() {
					So(err, ShouldNotBeNil)
				})
			})
		})
}

func TestSaveAttributesSkipsNil(t *testing.T) {
	Convey("Given an object with a declared but nil attribute", t, func() {
		sparse := &component{
			names: []string{"weights", "optional"},
			attrs: map[string]interface{}{
				"weights":  &scalar{value: 2.0},
				"optional": nil,
			},
		}

		Convey("When the object is saved and reloaded", func() {
			dir := t.TempDir()
			So(SaveAttributes(sparse, dir), ShouldBeNil)

			loaded := &component{
				names: []string{"weights", "optional"},
				attrs: map[string]interface{}{
					"weights":  &scalar{},
					"optional": nil,
				},
			}
			err := LoadAttributes(loaded, dir)

			Convey("The nil attribute is skipped without error", func() {
				So(err, ShouldBeNil)
				So(loaded.attrs["weights"].(*scalar).value, ShouldEqual, 2.0)
			})
		})
	})
}

func TestSaveAttributesRejectsUnserializable(t *testing.T) {
	Convey("Given an attribute that is neither Saveable nor Serializable",
		t, func() {
			broken := &component{
				names: []string{"weights"},
				attrs: map[string]interface{}{"weights": 42},
			}

			Convey("When the object is saved", func() {
				err := SaveAttributes(broken, t.TempDir())

				Convey("The save fails", func() {
					So(err, ShouldNotBeNil)
				})
			})
		})
}
