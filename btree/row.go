package btree

import (
	"bytes"

	"github.com/rajeshpillai/tiny-sqlite/common"
)

const (
	// UsernameSize and EmailSize are the maximum number of characters
	// (excluding the null terminator) each text field may hold.
	UsernameSize = 32
	EmailSize    = 255

	idSize       = 4
	usernameSize = UsernameSize + 1 // + null terminator
	emailSize    = EmailSize + 1    // + null terminator

	// RowSize is the fixed on-disk size of one record: it is the unit
	// of "value" stored in each leaf cell.
	RowSize = idSize + usernameSize + emailSize
)

// Row is one record: a signed 32-bit key and two bounded text fields.
type Row struct {
	ID       int32
	Username string
	Email    string
}

// NewRow validates and constructs a Row, rejecting fields that would
// not fit in their fixed-size on-disk buffers.
func NewRow(id int32, username, email string) (Row, error) {
	if len(username) > UsernameSize || len(email) > EmailSize {
		return Row{}, common.ErrFieldTooLong
	}
	return Row{ID: id, Username: username, Email: email}, nil
}

// serializeRow writes row into dst, which must be at least RowSize
// bytes. Text fields are stored null-terminated in a fixed buffer.
func serializeRow(row Row, dst []byte) {
	byteOrder.PutUint32(dst[:idSize], uint32(row.ID))

	usernameBuf := dst[idSize : idSize+usernameSize]
	zero(usernameBuf)
	copy(usernameBuf, row.Username)

	emailBuf := dst[idSize+usernameSize : idSize+usernameSize+emailSize]
	zero(emailBuf)
	copy(emailBuf, row.Email)
}

// deserializeRow reads a Row back out of src, which must be at least
// RowSize bytes.
func deserializeRow(src []byte) Row {
	id := int32(byteOrder.Uint32(src[:idSize]))

	usernameBuf := src[idSize : idSize+usernameSize]
	emailBuf := src[idSize+usernameSize : idSize+usernameSize+emailSize]

	return Row{
		ID:       id,
		Username: cStringToGo(usernameBuf),
		Email:    cStringToGo(emailBuf),
	}
}

func cStringToGo(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
