package minter

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var SupportedMediaTypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/gif",
	"image/svg+xml",
}

type TokenMetadata struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	MediaType   string `json:"mediaType"`
	Description string `json:"description"`
}

type MintRequest struct {
	Quantity string        `json:"quantity"`
	Metadata TokenMetadata `json:"metadata"`
	Network  Network       `json:"network,omitempty"`
}

// Amount parses Quantity as a positive integer that fits a ledger mint
// amount.
func (r MintRequest) Amount() (amount int64, err error) {
	quantity := strings.TrimSpace(r.Quantity)
	if quantity == "" {
		err = errors.New("quantity is required")
		return
	}

	d, err := decimal.NewFromString(quantity)
	if err != nil {
		err = errors.Errorf("quantity '%s' is not a number", r.Quantity)
		return
	}

	if !d.IsInteger() || !d.IsPositive() || strings.Trim(quantity, "0123456789") != "" {
		err = errors.Errorf("quantity '%s' must be a positive integer", r.Quantity)
		return
	}

	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		err = errors.Errorf("quantity '%s' is too large", r.Quantity)
		return
	}

	return d.IntPart(), nil
}

func (r MintRequest) Validate() (err error) {
	if _, err = r.Amount(); err != nil {
		return
	}

	if strings.TrimSpace(r.Metadata.Name) == "" {
		return errors.New("token name is required")
	}

	if r.Metadata.MediaType != "" && !IsSupportedMediaType(r.Metadata.MediaType) {
		return errors.Errorf(
			"unsupported media type '%s', expected one of %s",
			r.Metadata.MediaType,
			strings.Join(SupportedMediaTypes, ", "))
	}

	if r.Network != "" {
		if err = r.Network.Validate(); err != nil {
			return
		}
	}

	return
}

func IsSupportedMediaType(mediaType string) bool {
	for _, supported := range SupportedMediaTypes {
		if supported == mediaType {
			return true
		}
	}
	return false
}
