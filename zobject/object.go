package zobject

import (
	"encoding/binary"
	"fmt"

	"github.com/olson-dan/gozork/zcore"
	"github.com/olson-dan/gozork/zstring"
)

// Version 3 object table geometry: 31 property default words, then 9 byte
// entries of 4 attribute bytes, parent/sibling/child bytes and a property
// table pointer. Byte-wide tree links cap the table at 255 objects.
const (
	maxObjects        = 255
	defaultsSize      = 31 * 2
	objectEntrySize   = 9
	parentOffset      = 4
	siblingOffset     = 5
	childOffset       = 6
	propPointerOffset = 7
)

type Object struct {
	BaseAddress     uint32
	Id              uint16
	Name            string
	Attributes      uint32
	Parent          uint16
	Sibling         uint16
	Child           uint16
	PropertyPointer uint16
}

func GetObject(core *zcore.Core, objId uint16) (Object, error) {
	if objId == 0 || objId > maxObjects {
		return Object{}, fmt.Errorf("object %d does not exist: %w", objId, zcore.ErrStoryFormat)
	}

	objectBase := uint32(core.ObjectTableBase) + defaultsSize + uint32(objId-1)*objectEntrySize
	entry, err := core.ReadSlice(objectBase, objectBase+objectEntrySize)
	if err != nil {
		return Object{}, fmt.Errorf("object %d: %w", objId, err)
	}

	propertyPtr := binary.BigEndian.Uint16(entry[propPointerOffset:])
	name, err := objectName(core, propertyPtr)
	if err != nil {
		return Object{}, fmt.Errorf("object %d name: %w", objId, err)
	}

	return Object{
		BaseAddress:     objectBase,
		Id:              objId,
		Name:            name,
		Attributes:      binary.BigEndian.Uint32(entry),
		Parent:          uint16(entry[parentOffset]),
		Sibling:         uint16(entry[siblingOffset]),
		Child:           uint16(entry[childOffset]),
		PropertyPointer: propertyPtr,
	}, nil
}

// objectName reads the short name from the property table header. The length
// byte counts encoded half words; zero means the object is nameless and there
// is no string to decode.
func objectName(core *zcore.Core, propertyPtr uint16) (string, error) {
	nameLength, err := core.ReadZByte(uint32(propertyPtr))
	if err != nil || nameLength == 0 {
		return "", err
	}
	name, _, err := zstring.Decode(core, uint32(propertyPtr)+1)
	return name, err
}

func (o *Object) TestAttribute(attribute uint16) (bool, error) {
	if attribute > 31 {
		return false, fmt.Errorf("attribute %d out of range on object %d: %w", attribute, o.Id, zcore.ErrStoryFormat)
	}
	mask := uint32(1) << (31 - attribute)
	return o.Attributes&mask == mask, nil
}

func (o *Object) SetAttribute(core *zcore.Core, attribute uint16) error {
	if attribute > 31 {
		return fmt.Errorf("attribute %d out of range on object %d: %w", attribute, o.Id, zcore.ErrStoryFormat)
	}
	o.Attributes |= uint32(1) << (31 - attribute)
	return o.writeAttributes(core)
}

func (o *Object) ClearAttribute(core *zcore.Core, attribute uint16) error {
	if attribute > 31 {
		return fmt.Errorf("attribute %d out of range on object %d: %w", attribute, o.Id, zcore.ErrStoryFormat)
	}
	o.Attributes &= ^(uint32(1) << (31 - attribute))
	return o.writeAttributes(core)
}

func (o *Object) writeAttributes(core *zcore.Core) error {
	if err := core.WriteHalfWord(o.BaseAddress, uint16(o.Attributes>>16)); err != nil {
		return err
	}
	return core.WriteHalfWord(o.BaseAddress+2, uint16(o.Attributes))
}

func (o *Object) SetParent(core *zcore.Core, parent uint16) error {
	o.Parent = parent
	return core.WriteZByte(o.BaseAddress+parentOffset, uint8(parent))
}

func (o *Object) SetSibling(core *zcore.Core, sibling uint16) error {
	o.Sibling = sibling
	return core.WriteZByte(o.BaseAddress+siblingOffset, uint8(sibling))
}

func (o *Object) SetChild(core *zcore.Core, child uint16) error {
	o.Child = child
	return core.WriteZByte(o.BaseAddress+childOffset, uint8(child))
}

// Remove detaches an object from the tree, splicing it out of its old
// parent's child list. The object keeps its own children.
func Remove(core *zcore.Core, objId uint16) error {
	obj, err := GetObject(core, objId)
	if err != nil {
		return err
	}

	if obj.Parent != 0 {
		parent, err := GetObject(core, obj.Parent)
		if err != nil {
			return err
		}

		if parent.Child == objId {
			if err := parent.SetChild(core, obj.Sibling); err != nil {
				return err
			}
		} else {
			// Walk the sibling chain to the entry pointing at obj. The chain
			// cannot be longer than the object table.
			prev, err := GetObject(core, parent.Child)
			if err != nil {
				return err
			}
			for range maxObjects {
				if prev.Sibling == objId {
					break
				}
				if prev.Sibling == 0 {
					return fmt.Errorf("object %d not on parent %d's child list: %w", objId, obj.Parent, zcore.ErrStoryFormat)
				}
				if prev, err = GetObject(core, prev.Sibling); err != nil {
					return err
				}
			}
			if prev.Sibling != objId {
				return fmt.Errorf("sibling chain of object %d loops: %w", obj.Parent, zcore.ErrStoryFormat)
			}
			if err := prev.SetSibling(core, obj.Sibling); err != nil {
				return err
			}
		}
	}

	if err := obj.SetParent(core, 0); err != nil {
		return err
	}
	return obj.SetSibling(core, 0)
}

// Insert makes obj the first child of dest. The removal must fully complete
// before dest's child pointer is read: when obj is already inside dest's
// subtree the removal rewrites that subtree, and a child pointer read up
// front would resurrect a stale link.
func Insert(core *zcore.Core, objId uint16, destId uint16) error {
	if err := Remove(core, objId); err != nil {
		return err
	}

	dest, err := GetObject(core, destId)
	if err != nil {
		return err
	}
	obj, err := GetObject(core, objId)
	if err != nil {
		return err
	}

	if err := obj.SetSibling(core, dest.Child); err != nil {
		return err
	}
	if err := obj.SetParent(core, destId); err != nil {
		return err
	}
	return dest.SetChild(core, objId)
}
