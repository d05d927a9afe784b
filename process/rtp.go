package process

import (
	"fmt"
	"io"

	"github.com/pion/rtp"

	"github.com/edgevid/shmcast/frame"
)

// rawPayloader chunks an uncompressed frame payload into MTU-sized RTP
// payloads. It implements rtp.Payloader for payload formats pion has no
// codec for; reassembly is length-based on the receiver side.
type rawPayloader struct{}

func (rawPayloader) Payload(mtu uint16, payload []byte) [][]byte {
	if mtu == 0 || len(payload) == 0 {
		return nil
	}
	out := make([][]byte, 0, (len(payload)+int(mtu)-1)/int(mtu))
	for len(payload) > 0 {
		n := min(int(mtu), len(payload))
		out = append(out, payload[:n])
		payload = payload[n:]
	}
	return out
}

// RTPStreamer packetizes received frames and writes the packets to w,
// usually a UDP connection. One Packetize call per frame; the last packet
// of each frame carries the marker bit.
type RTPStreamer struct {
	MTU       uint16
	PT        uint8
	SSRC      uint32
	ClockRate uint32
	FPS       uint32

	writer     io.Writer
	packetizer rtp.Packetizer
}

func NewRTPStreamer(w io.Writer, fps uint32) (*RTPStreamer, error) {
	if fps == 0 {
		return nil, fmt.Errorf("fps must be positive")
	}
	s := &RTPStreamer{
		MTU:       1200,
		PT:        96,
		SSRC:      1,
		ClockRate: 90_000,
		FPS:       fps,
		writer:    w,
	}
	s.packetizer = rtp.NewPacketizer(s.MTU, s.PT, s.SSRC, rawPayloader{}, rtp.NewRandomSequencer(), s.ClockRate)
	return s, nil
}

func (s *RTPStreamer) Process(f *frame.Frame) error {
	samples := s.ClockRate / s.FPS
	pkts := s.packetizer.Packetize(f.Payload(), samples)
	for _, pkt := range pkts {
		buf, err := pkt.Marshal()
		if err != nil {
			return err
		}
		if _, err := s.writer.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
