package kv

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// logOp is the on-disk form of an Op. Value is base64 in the JSON encoding.
type logOp struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Set   string `json:"set,omitempty"`
	Value []byte `json:"value,omitempty"`
}

// logRecord is one line of the append-only log: the ops of a single atomic
// unit, applied together on replay.
type logRecord struct {
	Ops []logOp `json:"ops"`
}

var opTypeNames = map[OpType]string{
	SetOp:    "set",
	DeleteOp: "delete",
	SAddOp:   "sadd",
	SRemOp:   "srem",
}

var opTypeValues = map[string]OpType{
	"set":    SetOp,
	"delete": DeleteOp,
	"sadd":   SAddOp,
	"srem":   SRemOp,
}

func newLogRecord(ops []Op) logRecord {
	rec := logRecord{Ops: make([]logOp, len(ops))}
	for i, op := range ops {
		rec.Ops[i] = logOp{
			Type:  opTypeNames[op.Type],
			Key:   op.Key,
			Set:   op.Set,
			Value: op.Value,
		}
	}
	return rec
}

func (o logOp) toOp() Op {
	return Op{
		Type:  opTypeValues[o.Type],
		Key:   o.Key,
		Set:   o.Set,
		Value: o.Value,
	}
}

// appendLog manages writing to the append-only log file.
type appendLog struct {
	mu         sync.Mutex
	file       *os.File
	buf        *bufio.Writer
	syncWrites bool
	path       string
}

// openAppendLog opens or creates the log file at the given path.
func openAppendLog(path string, syncWrites bool) (*appendLog, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open append-only log: %w", err)
	}
	return &appendLog{
		file:       file,
		buf:        bufio.NewWriter(file),
		syncWrites: syncWrites,
		path:       path,
	}, nil
}

// append writes one record as a JSON line and flushes it to the file.
func (l *appendLog) append(rec logRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := l.buf.Write(data); err != nil {
		return err
	}
	if err := l.buf.WriteByte('\n'); err != nil {
		return err
	}
	if err := l.buf.Flush(); err != nil {
		return err
	}
	if l.syncWrites {
		return l.file.Sync()
	}
	return nil
}

// close flushes the buffer and closes the underlying file.
func (l *appendLog) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.buf.Flush(); err != nil {
		_ = l.file.Close()
		return err
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// replayAppendLog reads the log at path, if any, and feeds each record to
// apply in write order. A missing file is not an error.
//
// A crash mid-append leaves a torn final line: unterminated, usually
// unparseable. That tail is dropped and the file truncated back to the last
// good record so the store can start after an unclean shutdown. A record that
// fails to parse in the middle of the log was terminated and flushed, so it is
// real corruption and stays a hard error.
func replayAppendLog(path string, apply func(rec logRecord)) error {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var offset int64
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return readErr
		}
		if len(line) > 0 {
			terminated := readErr == nil

			var rec logRecord
			if jsonErr := json.Unmarshal(line, &rec); jsonErr != nil {
				if terminated {
					return fmt.Errorf("corrupt log record at offset %d: %w", offset, jsonErr)
				}
				// Torn tail from a crash mid-append: resume from the
				// last good record.
				return file.Truncate(offset)
			}

			if !terminated {
				// Whole record but the terminator never made it to disk;
				// restore it so the next append starts on a fresh line.
				if _, err := file.WriteAt([]byte{'\n'}, offset+int64(len(line))); err != nil {
					return err
				}
				offset++
			}

			apply(rec)
			offset += int64(len(line))
		}
		if readErr != nil {
			return nil
		}
	}
}
