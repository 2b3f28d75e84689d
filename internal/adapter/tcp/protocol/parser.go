package protocol

import (
	"regexp"
	"strconv"
	"strings"

	"bank-node/internal/core/domain"
	"bank-node/pkg/apperror"
)

// Code is a normalized (uppercase) command code.
type Code string

const (
	CodeDate          Code = "DATE"
	CodeHelp          Code = "HELP"
	CodeBankCode      Code = "BC"
	CodeCreateAccount Code = "AC"
	CodeDeposit       Code = "AD"
	CodeWithdraw      Code = "AW"
	CodeBalance       Code = "AB"
	CodeRemove        Code = "AR"
	CodeBankAmount    Code = "BA"
	CodeBankNumber    Code = "BN"
)

type argKind int

const (
	argAddress argKind = iota
	argAmount
)

type grammar struct {
	args  []argKind
	usage string
}

var commands = map[Code]grammar{
	CodeDate:          {usage: "DATE"},
	CodeHelp:          {usage: "HELP"},
	CodeBankCode:      {usage: "BC"},
	CodeCreateAccount: {usage: "AC"},
	CodeDeposit:       {args: []argKind{argAddress, argAmount}, usage: "AD <account>/<bank_code> <amount>"},
	CodeWithdraw:      {args: []argKind{argAddress, argAmount}, usage: "AW <account>/<bank_code> <amount>"},
	CodeBalance:       {args: []argKind{argAddress}, usage: "AB <account>/<bank_code>"},
	CodeRemove:        {args: []argKind{argAddress}, usage: "AR <account>/<bank_code>"},
	CodeBankAmount:    {usage: "BA"},
	CodeBankNumber:    {usage: "BN"},
}

// order in which HELP lists the commands
var helpOrder = []Code{
	CodeDate, CodeHelp, CodeBankCode, CodeCreateAccount, CodeDeposit,
	CodeWithdraw, CodeBalance, CodeRemove, CodeBankAmount, CodeBankNumber,
}

// Octets are not range-checked; "999.1.1.1" is accepted.
var bankCodeRe = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// Command is a parsed request line. Address and Amount are set only for
// commands that take them.
type Command struct {
	Code    Code
	Address domain.Address
	Amount  int64
}

// Parse tokenizes one request line and validates it against the command grammar.
func Parse(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, apperror.ErrEmptyCommand()
	}

	code := Code(strings.ToUpper(fields[0]))
	g, ok := commands[code]
	if !ok {
		return nil, apperror.ErrUnknownCommand()
	}

	args := fields[1:]
	if len(args) != len(g.args) {
		return nil, apperror.ErrInvalidArity(g.usage)
	}

	cmd := &Command{Code: code}
	for i, kind := range g.args {
		switch kind {
		case argAddress:
			addr, err := ParseAddress(args[i])
			if err != nil {
				return nil, err
			}
			cmd.Address = addr
		case argAmount:
			amount, err := ParseAmount(args[i])
			if err != nil {
				return nil, err
			}
			cmd.Amount = amount
		}
	}
	return cmd, nil
}

// ParseAddress validates "<number>/<bank_code>".
func ParseAddress(s string) (domain.Address, error) {
	if strings.Count(s, "/") != 1 {
		return domain.Address{}, apperror.ErrInvalidAddress()
	}
	numStr, bankCode, _ := strings.Cut(s, "/")

	if !isDigits(numStr) {
		return domain.Address{}, apperror.ErrInvalidAddress()
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || !domain.ValidAccountNumber(n) {
		return domain.Address{}, apperror.ErrInvalidAddress()
	}

	if !bankCodeRe.MatchString(bankCode) {
		return domain.Address{}, apperror.ErrInvalidAddress()
	}

	return domain.Address{Number: n, BankCode: bankCode}, nil
}

// ParseAmount accepts a strictly positive integer that fits in int64.
func ParseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, apperror.ErrAmountFormat()
	}
	if amount <= 0 {
		return 0, apperror.ErrAmountNotPositive()
	}
	return amount, nil
}

// HelpText lists every command with its usage on one line.
func HelpText() string {
	usages := make([]string, 0, len(helpOrder))
	for _, code := range helpOrder {
		usages = append(usages, commands[code].usage)
	}
	return "Available commands: " + strings.Join(usages, ", ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
