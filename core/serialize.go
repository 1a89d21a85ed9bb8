package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// DescriptorSnapshot is the binary form of a TaskDescriptor's stable
// (non-atomic, non-pointer) fields, used for debugging dumps and trace
// archival. Layout: [TaskID(4)][KernelID(4)][WorkerType(1)][ScopeDepth(4)]
// [FaninCount(4)][FanoutCount(4)][NumOutputs(4)][NumInputs(4)]
// [PackedBufferBase(8)][PackedBufferEnd(8)][FuncNameLen(2)][FuncName bytes].
func SerializeDescriptorSnapshot(d *TaskDescriptor) ([]byte, error) {
	buf := &bytes.Buffer{}

	for _, v := range []any{
		d.TaskID, d.KernelID,
	} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if err := buf.WriteByte(byte(d.WorkerType)); err != nil {
		return nil, err
	}
	for _, v := range []any{
		uint32(d.ScopeDepth), d.FaninCount, d.FanoutCount,
		uint32(d.NumOutputs), uint32(d.NumInputs),
		d.PackedBufferBase, d.PackedBufferEnd,
	} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}

	nameLen := uint16(len(d.FuncName))
	if err := binary.Write(buf, binary.LittleEndian, nameLen); err != nil {
		return nil, err
	}
	if nameLen > 0 {
		if _, err := buf.WriteString(d.FuncName); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// DeserializeDescriptorSnapshot reverses SerializeDescriptorSnapshot. The
// result has no FuncPtr and its FanoutLock is in its zero (unlocked) state.
func DeserializeDescriptorSnapshot(b []byte) (*TaskDescriptor, error) {
	r := bytes.NewReader(b)
	d := &TaskDescriptor{}

	if err := binary.Read(r, binary.LittleEndian, &d.TaskID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &d.KernelID); err != nil {
		return nil, err
	}
	wt, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d.WorkerType = WorkerType(wt)

	var scopeDepth, numOut, numIn uint32
	if err := binary.Read(r, binary.LittleEndian, &scopeDepth); err != nil {
		return nil, err
	}
	d.ScopeDepth = int(scopeDepth)
	if err := binary.Read(r, binary.LittleEndian, &d.FaninCount); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &d.FanoutCount); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &numOut); err != nil {
		return nil, err
	}
	d.NumOutputs = int(numOut)
	if err := binary.Read(r, binary.LittleEndian, &numIn); err != nil {
		return nil, err
	}
	d.NumInputs = int(numIn)
	if err := binary.Read(r, binary.LittleEndian, &d.PackedBufferBase); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &d.PackedBufferEnd); err != nil {
		return nil, err
	}

	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return nil, err
	}
	if nameLen > 0 {
		name := make([]byte, nameLen)
		if n, err := r.Read(name); err != nil || n != int(nameLen) {
			return nil, errors.New("core: truncated func name in descriptor snapshot")
		}
		d.FuncName = string(name)
	}

	return d, nil
}

// SnapshotHeader frames a batch of descriptor snapshots for archival
// alongside a trace file.
type SnapshotHeader struct {
	Magic    uint32
	Version  uint16
	Count    uint32
	Checksum uint32
}

const (
	SnapshotMagic   = 0x4F54505F // "_PTO" little endian
	SnapshotVersion = 1
	snapshotHdrSize = 14
)

// SerializeSnapshotBatch writes a length-prefixed, checksummed batch of
// descriptor snapshots. Used by cmd/ptobench's --dump flag to archive the
// descriptors it benchmarks.
func SerializeSnapshotBatch(descs []*TaskDescriptor) ([]byte, error) {
	body := &bytes.Buffer{}
	for _, d := range descs {
		data, err := SerializeDescriptorSnapshot(d)
		if err != nil {
			return nil, err
		}
		var frameLen uint32 = uint32(len(data))
		if err := binary.Write(body, binary.LittleEndian, frameLen); err != nil {
			return nil, err
		}
		body.Write(data)
	}

	header := SnapshotHeader{
		Magic:    SnapshotMagic,
		Version:  SnapshotVersion,
		Count:    uint32(len(descs)),
		Checksum: crc32.ChecksumIEEE(body.Bytes()),
	}

	out := &bytes.Buffer{}
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// DeserializeSnapshotBatch reverses SerializeSnapshotBatch.
func DeserializeSnapshotBatch(data []byte) ([]*TaskDescriptor, error) {
	if len(data) < snapshotHdrSize {
		return nil, errors.New("core: snapshot batch too short for header")
	}

	r := bytes.NewReader(data)
	var header SnapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != SnapshotMagic {
		return nil, errors.New("core: invalid snapshot magic")
	}
	if header.Version != SnapshotVersion {
		return nil, errors.New("core: unsupported snapshot version")
	}

	body := data[snapshotHdrSize:]
	if crc32.ChecksumIEEE(body) != header.Checksum {
		return nil, errors.New("core: snapshot checksum mismatch")
	}

	descs := make([]*TaskDescriptor, 0, header.Count)
	br := bytes.NewReader(body)
	for i := uint32(0); i < header.Count; i++ {
		var frameLen uint32
		if err := binary.Read(br, binary.LittleEndian, &frameLen); err != nil {
			return nil, err
		}
		frame := make([]byte, frameLen)
		if n, err := br.Read(frame); err != nil || uint32(n) != frameLen {
			return nil, errors.New("core: truncated snapshot frame")
		}
		d, err := DeserializeDescriptorSnapshot(frame)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}

	return descs, nil
}
