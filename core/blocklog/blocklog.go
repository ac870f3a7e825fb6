// Package blocklog implements the persistent half of component B: an
// append-only file of serialized irreversible blocks, each followed by an
// 8-byte little-endian offset of the block's own start, plus a sidecar
// index file mapping block number to that start offset (spec.md sections
// 4.2 and 6).
//
// The teacher's storage.Database is a key-value abstraction with no notion
// of sequential byte-offset append, so this package is grounded instead on
// the teacher's own file-handling idiom (os.OpenFile with O_APPEND/O_CREATE,
// explicit Sync before acknowledging a write) generalized from a
// single-handle log to the log-plus-index pair spec.md section 6 specifies.
package blocklog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"gamebankcore/core/types"
)

const offsetSize = 8

// Log is the append-only block file plus its sidecar index. Locking is
// turned off (lockDisabled) during reindex per section 4.7/5: only one
// thread accesses the log during replay, so the controller disables
// locking for the duration.
type Log struct {
	mu           sync.Mutex
	lockDisabled bool

	dataFile *os.File
	idxFile  *os.File

	head       uint64 // 0 means empty
	headOffset int64  // start offset of the head block, -1 if empty
	headCached *types.Block
}

// Open opens (creating if absent) the data and index files at the given
// paths, cross-validating them per section 6: if the index's final offset
// disagrees with the log's trailing offset, the index is rebuilt by a
// linear scan of the data file.
func Open(dataPath, indexPath string) (*Log, error) {
	dataFile, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blocklog: open data file: %w", err)
	}
	idxFile, err := os.OpenFile(indexPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("blocklog: open index file: %w", err)
	}

	l := &Log{dataFile: dataFile, idxFile: idxFile, headOffset: -1}
	if err := l.validateAndLoad(); err != nil {
		dataFile.Close()
		idxFile.Close()
		return nil, err
	}
	return l, nil
}

// DisableLocking turns off the internal mutex for the duration of a
// reindex, matching section 5's "the controller disables it because only
// one thread accesses it".
func (l *Log) DisableLocking() { l.lockDisabled = true }

// EnableLocking re-arms the mutex after a reindex completes.
func (l *Log) EnableLocking() { l.lockDisabled = false }

func (l *Log) lock() {
	if !l.lockDisabled {
		l.mu.Lock()
	}
}

func (l *Log) unlock() {
	if !l.lockDisabled {
		l.mu.Unlock()
	}
}

func (l *Log) validateAndLoad() error {
	dataInfo, err := l.dataFile.Stat()
	if err != nil {
		return fmt.Errorf("blocklog: stat data file: %w", err)
	}
	if dataInfo.Size() == 0 {
		return nil
	}

	// The trailing 8 bytes of the data file is always the head block's own
	// start offset (section 6).
	trailing := make([]byte, offsetSize)
	if _, err := l.dataFile.ReadAt(trailing, dataInfo.Size()-offsetSize); err != nil {
		return fmt.Errorf("blocklog: read trailing offset: %w", err)
	}
	dataHeadOffset := int64(binary.LittleEndian.Uint64(trailing))

	idxInfo, err := l.idxFile.Stat()
	if err != nil {
		return fmt.Errorf("blocklog: stat index file: %w", err)
	}
	headNum := uint64(idxInfo.Size() / offsetSize)

	var idxHeadOffset int64 = -1
	if headNum > 0 {
		buf := make([]byte, offsetSize)
		if _, err := l.idxFile.ReadAt(buf, int64(headNum-1)*offsetSize); err != nil {
			return fmt.Errorf("blocklog: read index tail: %w", err)
		}
		idxHeadOffset = int64(binary.LittleEndian.Uint64(buf))
	}

	if idxHeadOffset != dataHeadOffset {
		if err := l.rebuildIndex(); err != nil {
			return fmt.Errorf("blocklog: rebuild index: %w", err)
		}
		return l.loadHead()
	}

	l.head = headNum
	l.headOffset = dataHeadOffset
	return nil
}

// rebuildIndex performs a linear scan of the data file, reconstructing the
// sidecar index from scratch (section 6's "any detected inconsistency...
// triggers an index rebuild on open").
func (l *Log) rebuildIndex() error {
	if err := l.idxFile.Truncate(0); err != nil {
		return err
	}
	var offsets []int64
	var pos int64
	for {
		_, recordEnd, err := readRecordAt(l.dataFile, pos)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		offsets = append(offsets, pos)
		pos = recordEnd
	}
	buf := make([]byte, len(offsets)*offsetSize)
	for i, off := range offsets {
		binary.LittleEndian.PutUint64(buf[i*offsetSize:], uint64(off))
	}
	if _, err := l.idxFile.WriteAt(buf, 0); err != nil {
		return err
	}
	return l.idxFile.Sync()
}

func (l *Log) loadHead() error {
	idxInfo, err := l.idxFile.Stat()
	if err != nil {
		return err
	}
	l.head = uint64(idxInfo.Size() / offsetSize)
	if l.head == 0 {
		l.headOffset = -1
		return nil
	}
	buf := make([]byte, offsetSize)
	if _, err := l.idxFile.ReadAt(buf, int64(l.head-1)*offsetSize); err != nil {
		return err
	}
	l.headOffset = int64(binary.LittleEndian.Uint64(buf))
	return nil
}

// rlpItemLength reports how many bytes, starting at header[0], the single
// RLP item (string or list, short or long form) occupies in total
// (header plus payload), following the standard prefix-byte ranges.
func rlpItemLength(header []byte) (int64, error) {
	if len(header) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	b0 := header[0]
	switch {
	case b0 <= 0x7f:
		return 1, nil
	case b0 <= 0xb7:
		return 1 + int64(b0-0x80), nil
	case b0 <= 0xbf:
		lenOfLen := int(b0 - 0xb7)
		if len(header) < 1+lenOfLen {
			return 0, io.ErrUnexpectedEOF
		}
		strLen := bigEndianUint(header[1 : 1+lenOfLen])
		return 1 + int64(lenOfLen) + strLen, nil
	case b0 <= 0xf7:
		return 1 + int64(b0-0xc0), nil
	default:
		lenOfLen := int(b0 - 0xf7)
		if len(header) < 1+lenOfLen {
			return 0, io.ErrUnexpectedEOF
		}
		listLen := bigEndianUint(header[1 : 1+lenOfLen])
		return 1 + int64(lenOfLen) + listLen, nil
	}
}

func bigEndianUint(b []byte) int64 {
	var v int64
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	return v
}

// readRecordAt decodes one serialize(block)+offset record starting at pos,
// returning the block and the file position immediately after the record.
// It determines the exact byte length of the encoded block from its own
// RLP length prefix rather than relying on a stream's internal read
// position, since rlp.Stream may buffer ahead of what it has logically
// consumed from an io.Reader.
func readRecordAt(f *os.File, pos int64) (*types.Block, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if pos >= info.Size() {
		return nil, 0, io.EOF
	}
	header := make([]byte, 9)
	if int64(len(header)) > info.Size()-pos {
		header = header[:info.Size()-pos]
	}
	if _, err := f.ReadAt(header, pos); err != nil && err != io.EOF {
		return nil, 0, fmt.Errorf("blocklog: read header at offset %d: %w", pos, err)
	}
	itemLen, err := rlpItemLength(header)
	if err != nil {
		return nil, 0, fmt.Errorf("blocklog: determine record length at offset %d: %w", pos, err)
	}
	encoded := make([]byte, itemLen)
	if _, err := f.ReadAt(encoded, pos); err != nil {
		return nil, 0, fmt.Errorf("blocklog: read record at offset %d: %w", pos, err)
	}
	var b types.Block
	if err := rlp.DecodeBytes(encoded, &b); err != nil {
		return nil, 0, fmt.Errorf("blocklog: decode block at offset %d: %w", pos, err)
	}
	trailer := make([]byte, offsetSize)
	if _, err := f.ReadAt(trailer, pos+itemLen); err != nil {
		return nil, 0, fmt.Errorf("blocklog: read record trailer at offset %d: %w", pos+itemLen, err)
	}
	return &b, pos + itemLen + offsetSize, nil
}

// Append writes a block's serialized form followed by its own start offset
// to the data file, the corresponding offset to the index file, and
// advances the cached head. It asserts that the index's current write
// offset equals (block_num-1)*8, per section 4.2's writer contract.
func (l *Log) Append(b *types.Block) error {
	l.lock()
	defer l.unlock()

	if b.Header.Number != l.head+1 {
		return fmt.Errorf("blocklog: append block %d out of order, expected %d", b.Header.Number, l.head+1)
	}
	idxInfo, err := l.idxFile.Stat()
	if err != nil {
		return err
	}
	expectedIdxOffset := int64(b.Header.Number-1) * offsetSize
	if idxInfo.Size() != expectedIdxOffset {
		return fmt.Errorf("blocklog: index write offset %d does not equal expected %d", idxInfo.Size(), expectedIdxOffset)
	}

	dataInfo, err := l.dataFile.Stat()
	if err != nil {
		return err
	}
	startOffset := dataInfo.Size()

	encoded, err := rlp.EncodeToBytes(b)
	if err != nil {
		return fmt.Errorf("blocklog: encode block: %w", err)
	}
	trailer := make([]byte, offsetSize)
	binary.LittleEndian.PutUint64(trailer, uint64(startOffset))

	if _, err := l.dataFile.WriteAt(append(encoded, trailer...), startOffset); err != nil {
		return fmt.Errorf("blocklog: write record: %w", err)
	}
	if err := l.dataFile.Sync(); err != nil {
		return err
	}

	if _, err := l.idxFile.WriteAt(trailer, expectedIdxOffset); err != nil {
		return fmt.Errorf("blocklog: write index: %w", err)
	}
	if err := l.idxFile.Sync(); err != nil {
		return err
	}

	l.head = b.Header.Number
	l.headOffset = startOffset
	l.headCached = b
	return nil
}

// Head returns the highest block number durably appended, and whether the
// log is non-empty.
func (l *Log) Head() (uint64, bool) {
	l.lock()
	defer l.unlock()
	return l.head, l.head > 0
}

// ReadBlockByNum seeks the index for block_num's start offset, then
// deserializes one block from the data file at that offset.
func (l *Log) ReadBlockByNum(blockNum uint64) (*types.Block, error) {
	l.lock()
	defer l.unlock()
	if blockNum == 0 || blockNum > l.head {
		return nil, fmt.Errorf("blocklog: block %d not present (head=%d)", blockNum, l.head)
	}
	if l.headCached != nil && blockNum == l.head {
		return l.headCached, nil
	}
	buf := make([]byte, offsetSize)
	if _, err := l.idxFile.ReadAt(buf, int64(blockNum-1)*offsetSize); err != nil {
		return nil, fmt.Errorf("blocklog: read index entry %d: %w", blockNum, err)
	}
	offset := int64(binary.LittleEndian.Uint64(buf))
	b, _, err := readRecordAt(l.dataFile, offset)
	if err != nil {
		return nil, fmt.Errorf("blocklog: read block %d: %w", blockNum, err)
	}
	return b, nil
}

// Close releases both underlying file handles.
func (l *Log) Close() error {
	l.lock()
	defer l.unlock()
	err1 := l.dataFile.Close()
	err2 := l.idxFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
