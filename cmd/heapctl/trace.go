package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// opKind is the operation of one trace line.
type opKind byte

const (
	opAcquire opKind = 'a'
	opRelease opKind = 'r'
)

// traceOp is one parsed trace line.
type traceOp struct {
	Kind opKind
	ID   string
	Size int // acquire only
	Line int
}

// parseTrace reads a trace of "a <id> <size>" and "r <id>" lines. Blank
// lines and lines starting with '#' are skipped.
func parseTrace(r io.Reader) ([]traceOp, error) {
	var ops []traceOp
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		switch fields[0] {
		case "a":
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: want \"a <id> <size>\", got %q", line, text)
			}
			size, err := strconv.Atoi(fields[2])
			if err != nil || size < 0 {
				return nil, fmt.Errorf("line %d: bad size %q", line, fields[2])
			}
			ops = append(ops, traceOp{Kind: opAcquire, ID: fields[1], Size: size, Line: line})
		case "r":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: want \"r <id>\", got %q", line, text)
			}
			ops = append(ops, traceOp{Kind: opRelease, ID: fields[1], Line: line})
		default:
			return nil, fmt.Errorf("line %d: unknown operation %q", line, fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}
