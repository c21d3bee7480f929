package shared

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// Type tags stored in the lowest three bits of every generated id.
type IdType int64

const (
	IdTypePost            IdType = 0
	IdTypePostInteraction IdType = 1
	IdTypeIdentity        IdType = 2
	IdTypeReport          IdType = 3
	IdTypeFollow          IdType = 4
)

// SnowflakeEpoch is 2022-01-01 07:00:00 UTC, in seconds.
const SnowflakeEpoch = 1641020400

const (
	snowflakeTypeBits   = 3
	snowflakeRandBits   = 19
	snowflakeTimeShift  = snowflakeTypeBits + snowflakeRandBits
	snowflakeTypeMask   = 1<<snowflakeTypeBits - 1
	snowflakeRandMask   = 1<<snowflakeRandBits - 1
	minSnowflakeId      = int64(1) << snowflakeTimeShift
	snowflakeEpochMilli = SnowflakeEpoch * 1000
)

// GenerateId returns a 63-bit id: 41 bits of milliseconds since the epoch, 19 random bits, 3 bits of type.
// Ids from different milliseconds sort by time; within a millisecond the order is random and collisions
// are possible, so inserts rely on the primary key to reject duplicates.
func GenerateId(tag IdType) int64 {
	return generateIdAt(time.Now(), tag)
}

func generateIdAt(when time.Time, tag IdType) int64 {
	ms := when.UnixMilli() - snowflakeEpochMilli
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	rnd := int64(binary.BigEndian.Uint32(buf[:])) & snowflakeRandMask
	return ms<<snowflakeTimeShift | rnd<<snowflakeTypeBits | int64(tag)&snowflakeTypeMask
}

// GetIdType recovers the type tag of an id.
func GetIdType(id int64) (IdType, error) {
	if id < minSnowflakeId {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIdentifier, id)
	}
	return IdType(id & snowflakeTypeMask), nil
}

// GetIdTime recovers the generation time of an id, to the millisecond.
func GetIdTime(id int64) (time.Time, error) {
	if id < minSnowflakeId {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidIdentifier, id)
	}
	ms := id>>snowflakeTimeShift + snowflakeEpochMilli
	return time.UnixMilli(ms).UTC(), nil
}
