package agent

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// Serializable is an object whose complete state can be serialized
// into a single binary blob
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Saveable declares which of an object's attributes constitute its
// persistent state. SaveAttributes and LoadAttributes traverse the
// ownership tree rooted at a Saveable: an attribute that is itself
// Saveable recurses into a subdirectory named after the attribute,
// while any other attribute must be Serializable and is written as a
// single <name>.gob blob. Attributes with nil values are skipped.
//
// Attribute returns the named attribute's value and whether the
// object has such an attribute at all. Every name listed by
// SavedAttributes must be reported as present; a declared attribute
// that is missing is a consistency error that halts the traversal.
type Saveable interface {
	SavedAttributes() []string
	Attribute(name string) (interface{}, bool)
}

// SaveAttributes persists the saveable attribute tree rooted at s
// under dirname, creating directories as needed
func SaveAttributes(s Saveable, dirname string) error {
	return saveAttributes(s, dirname, nil)
}

func saveAttributes(s Saveable, dirname string,
	ancestors []Saveable) error {
	err := os.MkdirAll(dirname, 0o755)
	if err != nil {
		return fmt.Errorf("saveattributes: could not create %v: %v",
			dirname, err)
	}

	ancestors = append(ancestors, s)
	for _, name := range s.SavedAttributes() {
		attr, ok := s.Attribute(name)
		if !ok {
			return fmt.Errorf("saveattributes: no attribute named %q", name)
		}
		if attr == nil {
			continue
		}

		if child, ok := attr.(Saveable); ok {
			// Reference identity, not structural equality: two
			// identical sub-components are still distinct instances
			for _, ancestor := range ancestors {
				if child == ancestor {
					return fmt.Errorf("saveattributes: attribute %q is "+
						"its own ancestor", name)
				}
			}

			err := saveAttributes(child, filepath.Join(dirname, name),
				ancestors)
			if err != nil {
				return err
			}
			continue
		}

		serializable, ok := attr.(Serializable)
		if !ok {
			return fmt.Errorf("saveattributes: attribute %q is neither "+
				"Saveable nor Serializable", name)
		}

		blob, err := serializable.GobEncode()
		if err != nil {
			return fmt.Errorf("saveattributes: could not encode attribute "+
				"%q: %v", name, err)
		}

		filename := filepath.Join(dirname, name+".gob")
		err = os.WriteFile(filename, blob, 0o644)
		if err != nil {
			return fmt.Errorf("saveattributes: could not write %v: %v",
				filename, err)
		}
	}

	return nil
}

// LoadAttributes restores the saveable attribute tree rooted at s from
// dirname. The tree must already be constructed with the same
// structure it had when saved; loading fills in attribute state, it
// does not create attributes.
func LoadAttributes(s Saveable, dirname string) error {
	return loadAttributes(s, dirname, nil)
}

func loadAttributes(s Saveable, dirname string,
	ancestors []Saveable) error {
	ancestors = append(ancestors, s)
	for _, name := range s.SavedAttributes() {
		attr, ok := s.Attribute(name)
		if !ok {
			return fmt.Errorf("loadattributes: no attribute named %q", name)
		}
		if attr == nil {
			continue
		}

		if child, ok := attr.(Saveable); ok {
			for _, ancestor := range ancestors {
				if child == ancestor {
					return fmt.Errorf("loadattributes: attribute %q is "+
						"its own ancestor", name)
				}
			}

			err := loadAttributes(child, filepath.Join(dirname, name),
				ancestors)
			if err != nil {
				return err
			}
			continue
		}

		serializable, ok := attr.(Serializable)
		if !ok {
			return fmt.Errorf("loadattributes: attribute %q is neither "+
				"Saveable nor Serializable", name)
		}

		filename := filepath.Join(dirname, name+".gob")
		blob, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("loadattributes: could not read %v: %v",
				filename, err)
		}

		err = serializable.GobDecode(blob)
		if err != nil {
			return fmt.Errorf("loadattributes: could not decode attribute "+
				"%q: %v", name, err)
		}
	}

	return nil
}
