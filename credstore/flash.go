//go:build rp2040 || rp2350

package credstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"machine"

	"provisioncode-go/types"
	"provisioncode-go/x/mathx"
)

// Record layout in the first erase block of the flash data area:
// magic(4) | payload length(4) | payload crc32(4) | JSON payload.
const flashMagic = 0x50524F56

const flashHeaderLen = 12

var errRecordTooLarge = errors.New("credential record exceeds erase block")

// Flash persists the credential in on-chip flash, surviving power cycles
// and firmware updates that leave the data area alone.
type Flash struct{}

func NewFlash() *Flash { return &Flash{} }

func (f *Flash) Load() (types.Credential, error) {
	var hdr [flashHeaderLen]byte
	if _, err := machine.Flash.ReadAt(hdr[:], 0); err != nil {
		return types.Credential{}, err
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != flashMagic {
		return types.Credential{}, ErrNoCredential
	}
	n := binary.LittleEndian.Uint32(hdr[4:8])
	if int64(n) > machine.Flash.EraseBlockSize()-flashHeaderLen {
		return types.Credential{}, ErrNoCredential
	}
	buf := make([]byte, n)
	if _, err := machine.Flash.ReadAt(buf, flashHeaderLen); err != nil {
		return types.Credential{}, err
	}
	if crc32.ChecksumIEEE(buf) != binary.LittleEndian.Uint32(hdr[8:12]) {
		return types.Credential{}, ErrNoCredential
	}
	var cred types.Credential
	if err := json.Unmarshal(buf, &cred); err != nil {
		return types.Credential{}, ErrNoCredential
	}
	return cred, nil
}

func (f *Flash) Save(cred types.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	total := flashHeaderLen + len(data)
	if int64(total) > machine.Flash.EraseBlockSize() {
		return errRecordTooLarge
	}

	// Round up to the write block size; flash writes want full pages.
	wbs := uint32(machine.Flash.WriteBlockSize())
	padded := int(mathx.CeilDiv(uint32(total), wbs) * wbs)
	buf := make([]byte, padded)
	for i := range buf {
		buf[i] = 0xFF
	}
	binary.LittleEndian.PutUint32(buf[0:4], flashMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(data)))
	binary.LittleEndian.PutUint32(buf[8:12], crc32.ChecksumIEEE(data))
	copy(buf[flashHeaderLen:], data)

	if err := machine.Flash.EraseBlocks(0, 1); err != nil {
		return err
	}
	_, err = machine.Flash.WriteAt(buf, 0)
	return err
}

func (f *Flash) Erase() error {
	return machine.Flash.EraseBlocks(0, 1)
}
