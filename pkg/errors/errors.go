package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	grpccodes "google.golang.org/grpc/codes"
)

// Code is the type representing a namespace error code.
type Code[MT any] struct {
	Code     uint16
	Name     string
	GrpcCode grpccodes.Code
}

// New creates a new error with the given code and the message
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates a new Error with the given code and the cause error
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

// Is reports whether err carries this code.
func (c Code[MT]) Is(err error) bool {
	var e Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Code() == c.Code && e.CodeName() == c.Name
}

type Error interface {
	error
	Log() *log.Entry
	Code() uint16
	CodeName() string
	GrpcCode() grpccodes.Code
	Metadata() map[string]string
}

type TypedError[MT any] interface {
	Error
	WithMetadata(MT) TypedError[MT]
}

// ErrorImpl is the default concrete implementation of TypedError.
type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithField("name", e.code.Name).
		WithField("code", e.code.Code).
		WithField("metadata", e.metadata)
}

func (e *ErrorImpl[MT]) Metadata() map[string]string {
	// convert any metadata to map[string]string
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err == nil {
		var genericMap map[string]any
		if err := json.Unmarshal(buf, &genericMap); err == nil {
			for k, v := range genericMap {
				vStr := ""
				if v != nil {
					vStr = fmt.Sprintf("%v", v)
				}
				metadata[k] = vStr
			}
		}
	}
	return metadata
}

func (e *ErrorImpl[MT]) GrpcCode() grpccodes.Code {
	return e.code.GrpcCode
}

func (e *ErrorImpl[MT]) Code() uint16 {
	return e.code.Code
}

func (e *ErrorImpl[MT]) CodeName() string {
	return e.code.Name
}

// Error() implements the error interface.
func (e *ErrorImpl[MT]) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *ErrorImpl[MT]) Unwrap() error {
	return e.cause
}

func (e *ErrorImpl[MT]) WithMetadata(metadata MT) TypedError[MT] {
	e.metadata = metadata
	return e
}

type UnauthorizedMetadata struct {
	Caller   string `json:"caller"`
	Operator string `json:"operator"`
}

type FeeMismatchMetadata struct {
	ExpectedFee uint64 `json:"expected_fee,string"`
	PaidFee     uint64 `json:"paid_fee,string"`
}

type InvalidPriceMetadata struct {
	Price uint64 `json:"price,string"`
}

type PriceMismatchMetadata struct {
	TokenId    uint64 `json:"token_id"`
	Price      uint64 `json:"price,string"`
	PaidAmount uint64 `json:"paid_amount,string"`
}

type ListingMetadata struct {
	TokenId uint64 `json:"token_id"`
}

type ListingNotInCustodyMetadata struct {
	TokenId   uint64 `json:"token_id"`
	Custodian string `json:"custodian"`
}

type InsufficientLedgerBalanceMetadata struct {
	Balance     uint64 `json:"balance,string"`
	RequiredFee uint64 `json:"required_fee,string"`
}

type InvalidAddressMetadata struct {
	Address string `json:"address"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR", grpccodes.Internal}

var UNAUTHORIZED = Code[UnauthorizedMetadata]{
	1,
	"UNAUTHORIZED",
	grpccodes.PermissionDenied,
}

var FEE_MISMATCH = Code[FeeMismatchMetadata]{2, "FEE_MISMATCH", grpccodes.InvalidArgument}
var INVALID_PRICE = Code[InvalidPriceMetadata]{3, "INVALID_PRICE", grpccodes.InvalidArgument}

var PRICE_MISMATCH = Code[PriceMismatchMetadata]{
	4,
	"PRICE_MISMATCH",
	grpccodes.InvalidArgument,
}
var NO_SUCH_LISTING = Code[ListingMetadata]{5, "NO_SUCH_LISTING", grpccodes.NotFound}

var LISTING_NOT_IN_CUSTODY = Code[ListingNotInCustodyMetadata]{
	6,
	"LISTING_NOT_IN_CUSTODY",
	grpccodes.FailedPrecondition,
}

var INSUFFICIENT_LEDGER_BALANCE = Code[InsufficientLedgerBalanceMetadata]{
	7,
	"INSUFFICIENT_LEDGER_BALANCE",
	grpccodes.FailedPrecondition,
}

var INVALID_ADDRESS = Code[InvalidAddressMetadata]{
	8,
	"INVALID_ADDRESS",
	grpccodes.InvalidArgument,
}

var INVALID_REQUEST = Code[map[string]any]{9, "INVALID_REQUEST", grpccodes.InvalidArgument}
