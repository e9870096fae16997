package zobject

import (
	"encoding/binary"
	"fmt"

	"github.com/olson-dan/gozork/zcore"
)

// Property is one entry of an object's property table. Address and
// DataAddress are zero when the value came from the defaults table instead.
type Property struct {
	Id          uint8
	Length      uint8
	Address     uint32
	DataAddress uint32
	Data        []uint8
}

// Version 3 size byte: top three bits are length-1, bottom five the property
// number. A zero size byte terminates the table, conveniently reading as
// property number 0.
func propertyAt(core *zcore.Core, addr uint32) (Property, error) {
	sizeByte, err := core.ReadZByte(addr)
	if err != nil {
		return Property{}, err
	}
	if sizeByte == 0 {
		return Property{}, nil
	}

	length := sizeByte>>5 + 1
	data, err := core.ReadSlice(addr+1, addr+1+uint32(length))
	if err != nil {
		return Property{}, err
	}

	return Property{
		Id:          sizeByte & 0b1_1111,
		Length:      length,
		Address:     addr,
		DataAddress: addr + 1,
		Data:        data,
	}, nil
}

func (o *Object) firstPropertyAddress(core *zcore.Core) (uint32, error) {
	nameLength, err := core.ReadZByte(uint32(o.PropertyPointer))
	if err != nil {
		return 0, err
	}
	return uint32(o.PropertyPointer) + 1 + 2*uint32(nameLength), nil
}

// GetProperty finds property propertyId on the object, falling back to the
// story's defaults table when the object doesn't carry it. The fallback is
// normal control flow, not an error; callers distinguish it by Address == 0.
func (o *Object) GetProperty(core *zcore.Core, propertyId uint8) (Property, error) {
	if propertyId == 0 || propertyId > 31 {
		return Property{}, fmt.Errorf("property %d out of range on object %d: %w", propertyId, o.Id, zcore.ErrStoryFormat)
	}

	currentPtr, err := o.firstPropertyAddress(core)
	if err != nil {
		return Property{}, err
	}

	for {
		property, err := propertyAt(core, currentPtr)
		if err != nil {
			return Property{}, fmt.Errorf("property table of object %d: %w", o.Id, err)
		}
		if property.Id == 0 {
			break
		}
		if property.Id == propertyId {
			return property, nil
		}
		currentPtr = property.DataAddress + uint32(property.Length)
	}

	defaultAddress := uint32(core.ObjectTableBase) + 2*uint32(propertyId-1)
	data, err := core.ReadSlice(defaultAddress, defaultAddress+2)
	if err != nil {
		return Property{}, err
	}
	return Property{Id: propertyId, Length: 2, Data: data}, nil
}

// Value is the property data as a number: the single byte, or the first two
// bytes big-endian. Longer properties have no defined numeric value.
func (p *Property) Value() (uint16, error) {
	switch p.Length {
	case 1:
		return uint16(p.Data[0]), nil
	case 2:
		return binary.BigEndian.Uint16(p.Data), nil
	default:
		return 0, fmt.Errorf("property %d has length %d, no single value: %w", p.Id, p.Length, zcore.ErrStoryFormat)
	}
}

func (o *Object) SetProperty(core *zcore.Core, propertyId uint8, value uint16) error {
	property, err := o.GetProperty(core, propertyId)
	if err != nil {
		return err
	}
	if property.Address == 0 {
		return fmt.Errorf("object %d has no property %d to set: %w", o.Id, propertyId, zcore.ErrStoryFormat)
	}

	switch property.Length {
	case 1:
		return core.WriteZByte(property.DataAddress, uint8(value))
	case 2:
		return core.WriteHalfWord(property.DataAddress, value)
	default:
		return fmt.Errorf("property %d of object %d has length %d, can't set value: %w", propertyId, o.Id, property.Length, zcore.ErrStoryFormat)
	}
}

// NextProperty cycles through the property numbers an object carries, in
// table order: 0 gives the first, the last gives 0. Asking for the successor
// of a property the object doesn't have is a corruption error.
func (o *Object) NextProperty(core *zcore.Core, propertyId uint8) (uint8, error) {
	currentPtr, err := o.firstPropertyAddress(core)
	if err != nil {
		return 0, err
	}

	returnNext := propertyId == 0
	for {
		property, err := propertyAt(core, currentPtr)
		if err != nil {
			return 0, fmt.Errorf("property table of object %d: %w", o.Id, err)
		}
		if returnNext || property.Id == 0 {
			if returnNext {
				return property.Id, nil
			}
			return 0, fmt.Errorf("object %d has no property %d: %w", o.Id, propertyId, zcore.ErrStoryFormat)
		}
		if property.Id == propertyId {
			returnNext = true
		}
		currentPtr = property.DataAddress + uint32(property.Length)
	}
}

// GetPropertyLength recovers a property's length from its data address by
// reading back the size byte. Address 0 reports length 0, a case some story
// files rely on to mean "no such property".
func GetPropertyLength(core *zcore.Core, dataAddress uint32) (uint16, error) {
	if dataAddress == 0 {
		return 0, nil
	}
	sizeByte, err := core.ReadZByte(dataAddress - 1)
	if err != nil {
		return 0, err
	}
	return uint16(sizeByte>>5) + 1, nil
}
