package model

import (
	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
)

func CreateID() string {
	uuid, _ := uuid.NewRandom()
	return base58.Encode(uuid[:])
}

// CreateOrderedID returns a UUIDv7; ids sort in creation order.
func CreateOrderedID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
