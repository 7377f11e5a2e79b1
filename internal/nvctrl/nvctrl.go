// Package nvctrl speaks the NV-CONTROL X extension over an xgb connection.
//
// Only the requests needed to discover displays and read or write a single
// integer attribute are implemented. Requests are encoded the same way the
// xgb extension packages (randr, xinerama) encode theirs.
package nvctrl

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// ExtName is the name the server registers the extension under.
const ExtName = "NV-CONTROL"

// Minor opcodes.
const (
	opQueryExtension           = 0
	opIsNv                     = 1
	opQueryAttribute           = 2
	opSetAttribute             = 3
	opQueryValidAttributeValue = 5
	opQueryBinaryData          = 20
)

// TargetType selects what kind of object a target id refers to.
type TargetType uint16

const (
	TargetXScreen TargetType = 0
	TargetGPU     TargetType = 1
	TargetDisplay TargetType = 8
)

// Attribute is an NV-CONTROL attribute number.
type Attribute uint32

const (
	// DigitalVibrance is NV_CTRL_DIGITAL_VIBRANCE.
	DigitalVibrance Attribute = 261

	// BinaryDisplaysEnabledOnXScreen is NV_CTRL_BINARY_DATA_DISPLAYS_ENABLED_ON_XSCREEN.
	BinaryDisplaysEnabledOnXScreen Attribute = 17
)

// Valid value types reported by QueryValidTargetAttributeValues.
const (
	AttributeTypeUnknown = 0
	AttributeTypeInteger = 1
	AttributeTypeBitmask = 2
	AttributeTypeBool    = 3
	AttributeTypeRange   = 4
	AttributeTypeIntBits = 5
)

var (
	// ErrNotPresent is returned by Init when the server has no NV-CONTROL.
	ErrNotPresent = errors.New("nvctrl: extension not present")

	// ErrQueryFailed is returned when the server answered but flagged the
	// query as unsuccessful (unknown target, unsupported attribute).
	ErrQueryFailed = errors.New("nvctrl: query failed")
)

// ValidValues describes the values an attribute accepts.
type ValidValues struct {
	Type  int32
	Min   int64
	Max   int64
	Bits  uint32
	Perms uint32
}

// IsRange reports whether Min and Max are meaningful.
func (v ValidValues) IsRange() bool {
	return v.Type == AttributeTypeRange
}

// Init must be called before issuing any other request on c.
func Init(c *xgb.Conn) error {
	reply, err := xproto.QueryExtension(c, uint16(len(ExtName)), ExtName).Reply()
	switch {
	case err != nil:
		return fmt.Errorf("nvctrl: query extension: %w", err)
	case !reply.Present:
		return ErrNotPresent
	}

	c.ExtLock.Lock()
	c.Extensions[ExtName] = reply.MajorOpcode
	c.ExtLock.Unlock()
	return nil
}

func majorOpcode(c *xgb.Conn) byte {
	c.ExtLock.RLock()
	defer c.ExtLock.RUnlock()
	major, ok := c.Extensions[ExtName]
	if !ok {
		panic("Cannot issue NV-CONTROL requests on an uninitialized connection. nvctrl.Init(conn) must be called first.")
	}
	return major
}

// QueryVersion returns the extension version implemented by the server.
func QueryVersion(c *xgb.Conn) (major, minor int, err error) {
	cookie := c.NewCookie(true, true)
	c.NewRequest(queryExtensionRequest(majorOpcode(c)), cookie)
	buf, err := cookie.Reply()
	if err != nil {
		return 0, 0, err
	}
	if len(buf) < 12 {
		return 0, 0, fmt.Errorf("nvctrl: short version reply (%d bytes)", len(buf))
	}
	return int(xgb.Get16(buf[8:])), int(xgb.Get16(buf[10:])), nil
}

// IsNv reports whether screen is driven by the NVIDIA driver.
func IsNv(c *xgb.Conn, screen int) (bool, error) {
	cookie := c.NewCookie(true, true)
	c.NewRequest(isNvRequest(majorOpcode(c), screen), cookie)
	buf, err := cookie.Reply()
	if err != nil {
		return false, err
	}
	if len(buf) < 12 {
		return false, fmt.Errorf("nvctrl: short IsNv reply (%d bytes)", len(buf))
	}
	return xgb.Get32(buf[8:]) != 0, nil
}

// QueryTargetAttribute reads an integer attribute of a target.
func QueryTargetAttribute(c *xgb.Conn, target TargetType, id int, mask uint32, attr Attribute) (int32, error) {
	cookie := c.NewCookie(true, true)
	c.NewRequest(attributeRequest(majorOpcode(c), opQueryAttribute, target, id, mask, attr), cookie)
	buf, err := cookie.Reply()
	if err != nil {
		return 0, err
	}
	return parseAttributeReply(buf)
}

// SetTargetAttribute writes an integer attribute. The request is sent
// unchecked; X errors surface on the connection's event queue.
func SetTargetAttribute(c *xgb.Conn, target TargetType, id int, mask uint32, attr Attribute, value int32) {
	cookie := c.NewCookie(false, false)
	c.NewRequest(setAttributeRequest(majorOpcode(c), target, id, mask, attr, value), cookie)
}

// QueryValidTargetAttributeValues returns the accepted values of attr.
func QueryValidTargetAttributeValues(c *xgb.Conn, target TargetType, id int, mask uint32, attr Attribute) (ValidValues, error) {
	cookie := c.NewCookie(true, true)
	c.NewRequest(attributeRequest(majorOpcode(c), opQueryValidAttributeValue, target, id, mask, attr), cookie)
	buf, err := cookie.Reply()
	if err != nil {
		return ValidValues{}, err
	}
	return parseValidValuesReply(buf)
}

// QueryTargetBinaryData returns the raw payload of a binary attribute.
func QueryTargetBinaryData(c *xgb.Conn, target TargetType, id int, mask uint32, attr Attribute) ([]byte, error) {
	cookie := c.NewCookie(true, true)
	c.NewRequest(attributeRequest(majorOpcode(c), opQueryBinaryData, target, id, mask, attr), cookie)
	buf, err := cookie.Reply()
	if err != nil {
		return nil, err
	}
	return parseBinaryDataReply(buf)
}

// DisplayIDs decodes a display list binary payload: a 32-bit count followed
// by that many 32-bit display target ids. A count larger than the payload is
// truncated to what is present.
func DisplayIDs(data []byte) []int {
	if len(data) < 4 {
		return nil
	}
	n := int(int32(xgb.Get32(data)))
	if n < 0 {
		return nil
	}
	if avail := (len(data) - 4) / 4; n > avail {
		n = avail
	}
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, int(int32(xgb.Get32(data[4+i*4:]))))
	}
	return ids
}

func queryExtensionRequest(major byte) []byte {
	size := 4
	buf := make([]byte, size)
	buf[0] = major
	buf[1] = opQueryExtension
	xgb.Put16(buf[2:], uint16(size/4))
	return buf
}

func isNvRequest(major byte, screen int) []byte {
	size := 8
	buf := make([]byte, size)
	buf[0] = major
	buf[1] = opIsNv
	xgb.Put16(buf[2:], uint16(size/4))
	xgb.Put32(buf[4:], uint32(screen))
	return buf
}

// attributeRequest encodes the shared layout of QueryAttribute,
// QueryValidAttributeValues and QueryBinaryData.
func attributeRequest(major, op byte, target TargetType, id int, mask uint32, attr Attribute) []byte {
	size := 16
	buf := make([]byte, size)
	b := 0

	buf[b] = major
	b += 1

	buf[b] = op
	b += 1

	xgb.Put16(buf[b:], uint16(size/4))
	b += 2

	xgb.Put16(buf[b:], uint16(id))
	b += 2

	xgb.Put16(buf[b:], uint16(target))
	b += 2

	xgb.Put32(buf[b:], mask)
	b += 4

	xgb.Put32(buf[b:], uint32(attr))
	return buf
}

func setAttributeRequest(major byte, target TargetType, id int, mask uint32, attr Attribute, value int32) []byte {
	size := 20
	buf := make([]byte, size)
	copy(buf, attributeRequest(major, opSetAttribute, target, id, mask, attr))
	xgb.Put16(buf[2:], uint16(size/4))
	xgb.Put32(buf[16:], uint32(value))
	return buf
}

func parseAttributeReply(buf []byte) (int32, error) {
	if len(buf) < 16 {
		return 0, fmt.Errorf("nvctrl: short attribute reply (%d bytes)", len(buf))
	}
	if xgb.Get32(buf[8:]) == 0 {
		return 0, ErrQueryFailed
	}
	return int32(xgb.Get32(buf[12:])), nil
}

func parseValidValuesReply(buf []byte) (ValidValues, error) {
	if len(buf) < 32 {
		return ValidValues{}, fmt.Errorf("nvctrl: short valid values reply (%d bytes)", len(buf))
	}
	if xgb.Get32(buf[8:]) == 0 {
		return ValidValues{}, ErrQueryFailed
	}
	return ValidValues{
		Type:  int32(xgb.Get32(buf[12:])),
		Min:   int64(int32(xgb.Get32(buf[16:]))),
		Max:   int64(int32(xgb.Get32(buf[20:]))),
		Bits:  xgb.Get32(buf[24:]),
		Perms: xgb.Get32(buf[28:]),
	}, nil
}

func parseBinaryDataReply(buf []byte) ([]byte, error) {
	if len(buf) < 32 {
		return nil, fmt.Errorf("nvctrl: short binary data reply (%d bytes)", len(buf))
	}
	if xgb.Get32(buf[8:]) == 0 {
		return nil, ErrQueryFailed
	}
	n := int(xgb.Get32(buf[12:]))
	if n > len(buf)-32 {
		return nil, fmt.Errorf("nvctrl: binary data length %d exceeds reply", n)
	}
	data := make([]byte, n)
	copy(data, buf[32:32+n])
	return data, nil
}
