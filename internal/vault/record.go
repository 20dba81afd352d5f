/*

This file defines the persisted form of a Vault: a fixed 768-byte little-endian record.
Fields are laid out back to back in the order below and the tail is reserved zero space,
so new fields can be appended without moving existing ones. Any layout change must bump
RecordVersion.

	offset  size  field
	     0     3  version
	     3    32  owner
	    35    32  vault authority
	    67    32  authority seed
	    99     1  authority bump
	   100  32*N  provider reserves
	     .    32  vault reserve token
	     .  32*N  provider share token accounts
	     .    32  lp token mint
	     .    32  reserve token mint
	     .    32  fee receiver
	     .    32  referral fee receiver
	     .     4  flag bits
	     .    17  value (u64 value, u64 tick, u8 stale)
	     .  17*N  target allocations
	     .    20  config
	     .  17*N  actual allocations
	     .     .  reserved (zero)

*/

package vault

import (
	"encoding/binary"
	"fmt"

	"github.com/elys-network/allocator/internal/provider"
)

const (
	// RecordSize is the size of an encoded vault.
	RecordSize = 768

	staleValueSize = 8 + 8 + 1
	configSize     = 8 + 4 + 4 + 1 + 1 + 1 + 1
	pubkeySize     = 32

	recordUsed = 3 + 3*pubkeySize + 1 +
		provider.Count*pubkeySize + pubkeySize +
		provider.Count*pubkeySize + 4*pubkeySize +
		4 + staleValueSize + provider.Count*staleValueSize +
		configSize + provider.Count*staleValueSize

	// ReservedSize is the trailing space kept for future fields.
	ReservedSize = RecordSize - recordUsed
)

// RecordVersion is written into every record. Records with a different major version
// are rejected on load.
var RecordVersion = [3]byte{1, 0, 0}

// compile-time check that the layout fits the record.
var _ = [ReservedSize]byte{}

type recordWriter struct {
	buf []byte
	off int
}

func (w *recordWriter) bytes(b []byte) {
	w.off += copy(w.buf[w.off:], b)
}

func (w *recordWriter) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *recordWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *recordWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *recordWriter) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *recordWriter) staleValue(s StaleValue) {
	w.u64(s.Value)
	w.u64(s.LastUpdate.Tick)
	w.boolean(s.LastUpdate.Stale)
}

func (w *recordWriter) allocations(a Allocations) {
	for _, s := range a.All() {
		w.staleValue(s)
	}
}

type recordReader struct {
	buf []byte
	off int
	err error
}

func (r *recordReader) bytes(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *recordReader) pubkey() Pubkey {
	var k Pubkey
	copy(k[:], r.bytes(pubkeySize))
	return k
}

func (r *recordReader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *recordReader) u32() uint32 {
	return binary.LittleEndian.Uint32(r.bytes(4))
}

func (r *recordReader) u64() uint64 {
	return binary.LittleEndian.Uint64(r.bytes(8))
}

func (r *recordReader) boolean() bool {
	switch b := r.u8(); b {
	case 0:
		return false
	case 1:
		return true
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: invalid boolean byte %d at offset %d", ErrInvalidRecord, b, r.off-1)
		}
		return false
	}
}

func (r *recordReader) staleValue() StaleValue {
	return StaleValue{
		Value:      r.u64(),
		LastUpdate: LastUpdate{Tick: r.u64(), Stale: r.boolean()},
	}
}

func (r *recordReader) allocations() Allocations {
	var a Allocations
	for p := range provider.Providers() {
		a.Set(p, r.staleValue())
	}
	return a
}

// MarshalBinary encodes the vault into its fixed-size record.
func (v *Vault) MarshalBinary() ([]byte, error) {
	w := &recordWriter{buf: make([]byte, RecordSize)}

	w.bytes(v.Version[:])
	w.bytes(v.Owner[:])
	w.bytes(v.VaultAuthority[:])
	w.bytes(v.AuthoritySeed[:])
	w.u8(v.AuthorityBump)
	for _, acc := range v.ProviderAccounts.All() {
		w.bytes(acc.Reserve[:])
	}
	w.bytes(v.VaultReserveToken[:])
	for _, acc := range v.ProviderAccounts.All() {
		w.bytes(acc.ShareToken[:])
	}
	w.bytes(v.LPTokenMint[:])
	w.bytes(v.ReserveTokenMint[:])
	w.bytes(v.FeeReceiver[:])
	w.bytes(v.ReferralFeeReceiver[:])
	w.u32(v.flags.Bits())
	w.staleValue(v.Value)
	w.allocations(v.TargetAllocations)

	w.u64(v.Config.DepositCap)
	w.u32(v.Config.FeeCarryBps)
	w.u32(v.Config.FeeMgmtBps)
	w.u8(v.Config.ReferralFeePct)
	w.u8(v.Config.AllocationCapPct)
	w.u8(uint8(v.Config.RebalanceMode))
	w.u8(uint8(v.Config.StrategyType))

	w.allocations(v.ActualAllocations)

	if w.off != recordUsed {
		return nil, fmt.Errorf("%w: encoded %d bytes, layout expects %d", ErrInvalidRecord, w.off, recordUsed)
	}
	return w.buf, nil
}

// UnmarshalBinary decodes and validates a record. v is left untouched on error.
func (v *Vault) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: record is %d bytes, want %d", ErrInvalidRecord, len(data), RecordSize)
	}
	r := &recordReader{buf: data}

	var out Vault
	copy(out.Version[:], r.bytes(3))
	if out.Version[0] != RecordVersion[0] {
		return fmt.Errorf("%w: %d.%d.%d", ErrUnsupportedVersion, out.Version[0], out.Version[1], out.Version[2])
	}

	out.Owner = r.pubkey()
	out.VaultAuthority = r.pubkey()
	out.AuthoritySeed = r.pubkey()
	out.AuthorityBump = r.u8()
	for p := range provider.Providers() {
		out.ProviderAccounts.Ptr(p).Reserve = r.pubkey()
	}
	out.VaultReserveToken = r.pubkey()
	for p := range provider.Providers() {
		out.ProviderAccounts.Ptr(p).ShareToken = r.pubkey()
	}
	out.LPTokenMint = r.pubkey()
	out.ReserveTokenMint = r.pubkey()
	out.FeeReceiver = r.pubkey()
	out.ReferralFeeReceiver = r.pubkey()

	flags, err := FlagsFromBits(r.u32())
	if err != nil {
		return err
	}
	out.flags = flags

	out.Value = r.staleValue()
	out.TargetAllocations = r.allocations()

	cfg, err := NewConfig(ConfigArg{
		DepositCap:       r.u64(),
		FeeCarryBps:      r.u32(),
		FeeMgmtBps:       r.u32(),
		ReferralFeePct:   r.u8(),
		AllocationCapPct: r.u8(),
		RebalanceMode:    RebalanceMode(r.u8()),
		StrategyType:     StrategyType(r.u8()),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	out.Config = cfg

	out.ActualAllocations = r.allocations()

	if r.err != nil {
		return r.err
	}
	for i, b := range data[recordUsed:] {
		if b != 0 {
			return fmt.Errorf("%w: reserved byte %d is %#x", ErrInvalidRecord, recordUsed+i, b)
		}
	}

	*v = out
	return nil
}
