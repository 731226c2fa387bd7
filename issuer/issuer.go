// Package issuer single entry point to the issuance core
package issuer

import (
	"slotca/issuer/assembler"
	"slotca/issuer/linkage"
	"slotca/issuer/policy"
	"slotca/signer"
)

type (
	Assembler     = assembler.Assembler
	Request       = assembler.Request
	Certificate   = assembler.Certificate
	Policy        = policy.Policy
	IssuerContext = linkage.IssuerContext
)

var (
	ErrInvalidRequest = assembler.ErrInvalidRequest

	DefaultPolicy = policy.Default
	LoadPolicy    = policy.Load
)

func New(s signer.Interface) *Assembler { return assembler.New(s) }
