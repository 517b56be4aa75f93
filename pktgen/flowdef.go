package pktgen

import (
	"fmt"

	"github.com/ardnew/softreg/codec"
)

// FlowDef describes the packets of one flow. Field widths are those of
// the flow definition RAM; values that do not fit are rejected by
// [FlowDef.Encode].
type FlowDef struct {
	MACDA     uint64 // 48 bits
	MACSA     uint64 // 48 bits
	EtherType uint16

	VLANValid bool
	VLANTag   uint32

	NumMPLSLabels uint8 // 2 bits
	MPLSLabel0    uint32
	MPLSLabel1    uint32

	IPVersion  uint8 // 4 bits
	IPIHL      uint8 // 4 bits
	IPDSCP     uint8 // 6 bits
	IPECN      uint8 // 2 bits
	IPLength   uint16
	IPID       uint16
	IPFlags    uint8  // 3 bits
	IPFragOfs  uint16 // 13 bits
	IPTTL      uint8  // 7 bits
	IPProt     uint8  // 7 bits
	IPHdrChk   uint16
	IPSA, IPDA uint32

	BlenMode uint8  // 2 bits
	BlenMin  uint16 // 14 bits
	BlenMax  uint16 // 14 bits

	PayloadMode  uint8 // 2 bits
	PayloadValue uint8
}

// FlowDefLayout is the bit layout of a flow definition, most significant
// field first. Encode and decode both derive from it.
var FlowDefLayout = codec.MustLayout(
	codec.FieldDef{Name: "mac_da", Width: 48},
	codec.FieldDef{Name: "mac_sa", Width: 48},
	codec.FieldDef{Name: "ether_type", Width: 16},
	codec.FieldDef{Name: "vlan_valid", Width: 1},
	codec.FieldDef{Name: "vlan_tag", Width: 32},
	codec.FieldDef{Name: "num_mpls_labels", Width: 2},
	codec.FieldDef{Name: "mpls_label0", Width: 32},
	codec.FieldDef{Name: "mpls_label1", Width: 32},
	codec.FieldDef{Name: "ip_version", Width: 4},
	codec.FieldDef{Name: "ip_ihl", Width: 4},
	codec.FieldDef{Name: "ip_dscp", Width: 6},
	codec.FieldDef{Name: "ip_ecn", Width: 2},
	codec.FieldDef{Name: "ip_length", Width: 16},
	codec.FieldDef{Name: "ip_id", Width: 16},
	codec.FieldDef{Name: "ip_flags", Width: 3},
	codec.FieldDef{Name: "ip_frag_ofs", Width: 13},
	codec.FieldDef{Name: "ip_ttl", Width: 7},
	codec.FieldDef{Name: "ip_prot", Width: 7},
	codec.FieldDef{Name: "ip_hdr_chk", Width: 16},
	codec.FieldDef{Name: "ip_sa", Width: 32},
	codec.FieldDef{Name: "ip_da", Width: 32},
	codec.FieldDef{Name: "pkt_blen_mode", Width: 2},
	codec.FieldDef{Name: "pkt_blen_min", Width: 14},
	codec.FieldDef{Name: "pkt_blen_max", Width: 14},
	codec.FieldDef{Name: "payload_mode", Width: 2},
	codec.FieldDef{Name: "payload_value", Width: 8},
)

// values returns the field values in layout order.
func (f FlowDef) values() []uint64 {
	var vlan uint64
	if f.VLANValid {
		vlan = 1
	}
	return []uint64{
		f.MACDA, f.MACSA, uint64(f.EtherType),
		vlan, uint64(f.VLANTag),
		uint64(f.NumMPLSLabels), uint64(f.MPLSLabel0), uint64(f.MPLSLabel1),
		uint64(f.IPVersion), uint64(f.IPIHL), uint64(f.IPDSCP), uint64(f.IPECN),
		uint64(f.IPLength), uint64(f.IPID), uint64(f.IPFlags), uint64(f.IPFragOfs),
		uint64(f.IPTTL), uint64(f.IPProt), uint64(f.IPHdrChk),
		uint64(f.IPSA), uint64(f.IPDA),
		uint64(f.BlenMode), uint64(f.BlenMin), uint64(f.BlenMax),
		uint64(f.PayloadMode), uint64(f.PayloadValue),
	}
}

// Encode packs f into registers of wordWidth bits, most significant word
// first.
func (f FlowDef) Encode(wordWidth uint) ([]uint64, error) {
	words, err := FlowDefLayout.Pack(f.values(), wordWidth)
	if err != nil {
		return nil, fmt.Errorf("flow def: %w", err)
	}
	return words, nil
}

// DecodeFlowDef unpacks a flow definition from registers of wordWidth
// bits, most significant word first.
func DecodeFlowDef(words []uint64, wordWidth uint) (FlowDef, error) {
	v, err := FlowDefLayout.Unpack(words, wordWidth)
	if err != nil {
		return FlowDef{}, fmt.Errorf("flow def: %w", err)
	}
	return FlowDef{
		MACDA:         v[0],
		MACSA:         v[1],
		EtherType:     uint16(v[2]),
		VLANValid:     v[3] != 0,
		VLANTag:       uint32(v[4]),
		NumMPLSLabels: uint8(v[5]),
		MPLSLabel0:    uint32(v[6]),
		MPLSLabel1:    uint32(v[7]),
		IPVersion:     uint8(v[8]),
		IPIHL:         uint8(v[9]),
		IPDSCP:        uint8(v[10]),
		IPECN:         uint8(v[11]),
		IPLength:      uint16(v[12]),
		IPID:          uint16(v[13]),
		IPFlags:       uint8(v[14]),
		IPFragOfs:     uint16(v[15]),
		IPTTL:         uint8(v[16]),
		IPProt:        uint8(v[17]),
		IPHdrChk:      uint16(v[18]),
		IPSA:          uint32(v[19]),
		IPDA:          uint32(v[20]),
		BlenMode:      uint8(v[21]),
		BlenMin:       uint16(v[22]),
		BlenMax:       uint16(v[23]),
		PayloadMode:   uint8(v[24]),
		PayloadValue:  uint8(v[25]),
	}, nil
}
