// internal/pylon/info.go
package pylon

import (
	"fmt"
	"strconv"
)

// cursor walks a hex INFO field. The first out-of-range read sticks as err;
// callers check it once at the end so a truncated field is never half-applied.
type cursor struct {
	s   string
	pos int
	err error
}

func (c *cursor) take(n int) string {
	if c.err != nil {
		return ""
	}
	if c.pos+n > len(c.s) {
		c.err = fmt.Errorf("%w: info truncated at %d (need %d, have %d)", ErrMalformed, c.pos, n, len(c.s)-c.pos)
		return ""
	}
	v := c.s[c.pos : c.pos+n]
	c.pos += n
	return v
}

func (c *cursor) u8() byte {
	v := c.take(2)
	if c.err != nil {
		return 0
	}
	b, err := strconv.ParseUint(v, 16, 8)
	if err != nil {
		c.err = fmt.Errorf("%w: bad hex %q at %d", ErrMalformed, v, c.pos-2)
		return 0
	}
	return byte(b)
}

func (c *cursor) u16() uint16 {
	v := c.take(4)
	if c.err != nil {
		return 0
	}
	b, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		c.err = fmt.Errorf("%w: bad hex %q at %d", ErrMalformed, v, c.pos-4)
		return 0
	}
	return uint16(b)
}

func (c *cursor) remaining() int {
	return len(c.s) - c.pos
}
