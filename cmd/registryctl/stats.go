package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/xerrors"
)

const (
	forwardedMarker = "Message forwarded to"
	failedMarker    = "Error forwarding to"
)

// deliveryStats — счетчики доставок по журналу бота.
type deliveryStats struct {
	Forwarded int
	Failed    int
}

// countDeliveries считает строки журнала с успешными и неудачными пересылками.
func countDeliveries(r io.Reader) (deliveryStats, error) {
	var st deliveryStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, forwardedMarker):
			st.Forwarded++
		case strings.Contains(line, failedMarker):
			st.Failed++
		}
	}
	if err := sc.Err(); err != nil {
		return st, xerrors.Errorf("failed to read log: %w", err)
	}
	return st, nil
}

func printStats(path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return xerrors.Errorf("failed to open bot log %s: %w", path, err)
	}
	defer f.Close()

	st, err := countDeliveries(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Messages forwarded: %d\n", st.Forwarded)
	fmt.Fprintf(out, "Errors: %d\n", st.Failed)
	return nil
}
