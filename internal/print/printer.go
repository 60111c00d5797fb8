// Package print drains the print job queue to physical printers.
package print

import (
	"context"
	"fmt"
	"net"
	"time"

	apperrors "github.com/emberpos/core/internal/errors"
)

// Printer dispatches pre-rendered ticket content to a named printer. The
// core does no formatting; content is opaque bytes to it.
type Printer interface {
	Print(ctx context.Context, printerName string, content []byte) error
}

// NetworkPrinter sends content over raw TCP, the common transport for
// thermal receipt printers. printerName is a host, with the conventional
// port 9100 assumed when none is given.
type NetworkPrinter struct {
	dialTimeout time.Duration
}

// NewNetworkPrinter creates a NetworkPrinter with the given dial timeout.
func NewNetworkPrinter(dialTimeout time.Duration) *NetworkPrinter {
	return &NetworkPrinter{dialTimeout: dialTimeout}
}

// Print connects to the printer and writes the content. All failures are
// transient from the queue's point of view; the attempts cap decides when
// to give up.
func (p *NetworkPrinter) Print(ctx context.Context, printerName string, content []byte) error {
	addr := printerName
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(printerName, "9100")
	}

	dialer := &net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrPrintTransient, fmt.Sprintf("printer %s unreachable", printerName), err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}

	if _, err := conn.Write(content); err != nil {
		return apperrors.Wrap(apperrors.ErrPrintTransient, fmt.Sprintf("write to printer %s failed", printerName), err)
	}
	return nil
}
