package packetchain

// TeeChain submits every packet to each of its member chains, so a single
// tracker can feed both the in-process consumer and an optional sink (e.g.
// PcapFileChain) without either knowing about the other.
type TeeChain struct {
	chains []Chain
}

func NewTeeChain(chains ...Chain) *TeeChain {
	return &TeeChain{chains: chains}
}

// Submit reports accepted only if every member chain accepted the packet.
func (t *TeeChain) Submit(p Packet) bool {
	accepted := true
	for _, c := range t.chains {
		if !c.Submit(p) {
			accepted = false
		}
	}
	return accepted
}
