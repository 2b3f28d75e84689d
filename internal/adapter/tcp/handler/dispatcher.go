package handler

import (
	"context"
	"strconv"
	"time"

	"bank-node/internal/adapter/tcp/protocol"
	"bank-node/internal/core/ports"
	"bank-node/pkg/apperror"
	"bank-node/pkg/response"
)

// DateLayout is the wire format of the DATE reply.
const DateLayout = "2006-01-02 15:04:05"

// Dispatcher executes parsed commands against the ledger.
type Dispatcher struct {
	ledger ports.LedgerService
	now    func() time.Time
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(ledger ports.LedgerService) *Dispatcher {
	return &Dispatcher{ledger: ledger, now: time.Now}
}

// Handle parses req.Line and returns exactly one response line.
// Failures are recorded in req.Err and rendered as an error line.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) string {
	cmd, err := protocol.Parse(req.Line)
	if err != nil {
		req.Err = err
		return response.Error(err)
	}
	req.Command = cmd

	line, err := d.execute(ctx, req, cmd)
	if err != nil {
		req.Err = err
		return response.Error(err)
	}
	return line
}

func (d *Dispatcher) execute(ctx context.Context, req *protocol.Request, cmd *protocol.Command) (string, error) {
	code := string(cmd.Code)

	switch cmd.Code {
	case protocol.CodeDate:
		return d.now().Format(DateLayout), nil

	case protocol.CodeHelp:
		return protocol.HelpText(), nil

	case protocol.CodeBankCode:
		return response.OK(code, d.ledger.BankCode()), nil

	case protocol.CodeCreateAccount:
		acc, err := d.ledger.CreateAccount(ctx)
		if err != nil {
			return "", err
		}
		addr := acc.Address()
		req.Created = &addr
		return response.OK(code, addr.String()), nil

	case protocol.CodeDeposit:
		if err := d.ledger.Deposit(ctx, cmd.Address, cmd.Amount); err != nil {
			return "", err
		}
		return response.OK(code), nil

	case protocol.CodeWithdraw:
		if err := d.ledger.Withdraw(ctx, cmd.Address, cmd.Amount); err != nil {
			return "", err
		}
		return response.OK(code), nil

	case protocol.CodeBalance:
		balance, err := d.ledger.Balance(ctx, cmd.Address)
		if err != nil {
			return "", err
		}
		return response.OK(code, strconv.FormatInt(balance, 10)), nil

	case protocol.CodeRemove:
		if err := d.ledger.RemoveAccount(ctx, cmd.Address); err != nil {
			return "", err
		}
		return response.OK(code), nil

	case protocol.CodeBankAmount:
		total, err := d.ledger.TotalBalance(ctx)
		if err != nil {
			return "", err
		}
		return response.OK(code, strconv.FormatInt(total, 10)), nil

	case protocol.CodeBankNumber:
		count, err := d.ledger.AccountCount(ctx)
		if err != nil {
			return "", err
		}
		return response.OK(code, strconv.FormatInt(count, 10)), nil
	}

	return "", apperror.ErrUnknownCommand()
}
