package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	grpccodes "google.golang.org/grpc/codes"
)

// Code identifies a failure reason. MT is the type of the metadata attached
// to errors created from it.
type Code[MT any] struct {
	Code     uint16
	Name     string
	GrpcCode grpccodes.Code
}

// New creates an error with the given code and a formatted message.
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates an error with the given code around cause.
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
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
	TypedMetadata() MT
}

// Is reports whether any error in err's chain carries the given code.
func Is[MT any](err error, c Code[MT]) bool {
	var e Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Code() == c.Code
}

// CodeOf returns the code of the first typed error in err's chain, or
// INTERNAL_ERROR's code if there is none.
func CodeOf(err error) uint16 {
	var e Error
	if stderrors.As(err, &e) {
		return e.Code()
	}
	return INTERNAL_ERROR.Code
}

type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithFields(log.Fields{
		"name":     e.code.Name,
		"code":     e.code.Code,
		"metadata": e.metadata,
	})
}

// Metadata flattens the typed metadata into string values so it can travel
// in gRPC error details.
func (e *ErrorImpl[MT]) Metadata() map[string]string {
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err != nil {
		return metadata
	}
	var fields map[string]any
	if err := json.Unmarshal(buf, &fields); err != nil {
		return metadata
	}
	for k, v := range fields {
		if v == nil {
			metadata[k] = ""
			continue
		}
		metadata[k] = fmt.Sprintf("%v", v)
	}
	return metadata
}

func (e *ErrorImpl[MT]) TypedMetadata() MT {
	return e.metadata
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

type MessageMetadata struct {
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason"`
}

type SignatureMetadata struct {
	Index int `json:"index"`
}

type MissingSignatureMetadata struct {
	Missing []string `json:"missing"`
}

type CallerMetadata struct {
	Caller    string `json:"caller"`
	ChannelID string `json:"channel_id,omitempty"`
}

type ChannelMetadata struct {
	ChannelID string `json:"channel_id"`
}

type ChannelStateMetadata struct {
	ChannelID string `json:"channel_id"`
	Status    string `json:"status"`
}

type NonceMetadata struct {
	ChannelID   string `json:"channel_id"`
	StoredNonce uint64 `json:"stored_nonce"`
	GotNonce    uint64 `json:"got_nonce"`
}

type TimelockMetadata struct {
	ID       string `json:"id"`
	Now      int64  `json:"now"`
	Deadline int64  `json:"deadline,omitempty"`
	Timeout  int64  `json:"timeout,omitempty"`
}

type ShardMetadata struct {
	ChannelID string `json:"channel_id"`
	Shard     uint32 `json:"shard"`
	Status    string `json:"status,omitempty"`
}

// PreimageMetadata identifies the channel or swap a preimage was submitted
// for. Shard is set for channel shards only.
type PreimageMetadata struct {
	ID    string `json:"id"`
	Shard uint32 `json:"shard,omitempty"`
}

type SwapMetadata struct {
	SwapID string `json:"swap_id"`
}

type InsufficientFundsMetadata struct {
	Owner     string `json:"owner"`
	Asset     string `json:"asset"`
	Available string `json:"available"`
	Required  string `json:"required"`
}

type InvalidTimelockMetadata struct {
	ID           string `json:"id"`
	MultichainID string `json:"multichain_id,omitempty"`
	Reason       string `json:"reason"`
}

type OperationMetadata struct {
	Operation string `json:"operation"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR", grpccodes.Internal}
var INVALID_MESSAGE = Code[MessageMetadata]{1, "INVALID_MESSAGE", grpccodes.InvalidArgument}

var INVALID_SIGNATURE = Code[SignatureMetadata]{
	2,
	"INVALID_SIGNATURE",
	grpccodes.InvalidArgument,
}

var MISSING_SIGNATURE = Code[MissingSignatureMetadata]{
	3,
	"MISSING_SIGNATURE",
	grpccodes.PermissionDenied,
}
var UNAUTHORIZED = Code[CallerMetadata]{4, "UNAUTHORIZED", grpccodes.PermissionDenied}
var DUPLICATE_CHANNEL = Code[ChannelMetadata]{5, "DUPLICATE_CHANNEL", grpccodes.AlreadyExists}
var UNKNOWN_CHANNEL = Code[ChannelMetadata]{6, "UNKNOWN_CHANNEL", grpccodes.NotFound}
var STALE_NONCE = Code[NonceMetadata]{7, "STALE_NONCE", grpccodes.FailedPrecondition}
var DEADLINE_EXPIRED = Code[TimelockMetadata]{8, "DEADLINE_EXPIRED", grpccodes.FailedPrecondition}

var TIMEOUT_NOT_REACHED = Code[TimelockMetadata]{
	9,
	"TIMEOUT_NOT_REACHED",
	grpccodes.FailedPrecondition,
}
var TIMEOUT_EXPIRED = Code[TimelockMetadata]{10, "TIMEOUT_EXPIRED", grpccodes.FailedPrecondition}
var WRONG_PREIMAGE = Code[PreimageMetadata]{11, "WRONG_PREIMAGE", grpccodes.InvalidArgument}

var SHARD_ALREADY_RESOLVED = Code[ShardMetadata]{
	12,
	"SHARD_ALREADY_RESOLVED",
	grpccodes.FailedPrecondition,
}
var SLOT_IN_USE = Code[SwapMetadata]{13, "SLOT_IN_USE", grpccodes.AlreadyExists}

var INSUFFICIENT_FUNDS = Code[InsufficientFundsMetadata]{
	14,
	"INSUFFICIENT_FUNDS",
	grpccodes.FailedPrecondition,
}
var REENTRANT_CALL = Code[OperationMetadata]{15, "REENTRANT_CALL", grpccodes.Aborted}
var UNKNOWN_SWAP = Code[SwapMetadata]{16, "UNKNOWN_SWAP", grpccodes.NotFound}

var INVALID_CHANNEL_STATE = Code[ChannelStateMetadata]{
	17,
	"INVALID_CHANNEL_STATE",
	grpccodes.FailedPrecondition,
}

var INVALID_TIMELOCK = Code[InvalidTimelockMetadata]{
	18,
	"INVALID_TIMELOCK",
	grpccodes.InvalidArgument,
}
