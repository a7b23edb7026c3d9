package disconnect_test

import (
	"context"
	"net"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spotwall/radbridge/pkg/disconnect"
	"go.uber.org/zap"
	"layeh.com/radius"
)

func TestDisconnect(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Disconnect Client Suite")
}

// fakeNAS answers every Disconnect-Request on a loopback UDP socket with
// the given code, or stays silent when code is zero.
func fakeNAS(secret string, code radius.Code) (port int, stop func()) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	Expect(err).NotTo(HaveOccurred())

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if code == 0 {
				continue
			}
			request, err := radius.Parse(buf[:n], []byte(secret))
			if err != nil {
				continue
			}
			response := request.Response(code)
			encoded, err := response.Encode()
			if err != nil {
				continue
			}
			conn.WriteToUDP(encoded, addr)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port, func() { conn.Close() }
}

var _ = Describe("Disconnect Request", func() {
	var valid disconnect.Request

	BeforeEach(func() {
		valid = disconnect.Request{
			Username:   "alice",
			SessionID:  "8100000a",
			NASAddress: "127.0.0.1",
			FramedIP:   "172.16.0.10",
		}
	})

	Describe("Validate", func() {
		It("accepts a fully populated request", func() {
			Expect(valid.Validate()).To(Succeed())
		})

		It("reports every missing field", func() {
			req := disconnect.Request{Username: "alice"}
			err := req.Validate()
			Expect(err).To(MatchError(disconnect.ErrIncomplete))
			Expect(err.Error()).To(ContainSubstring("session id"))
			Expect(err.Error()).To(ContainSubstring("nas address"))
			Expect(err.Error()).To(ContainSubstring("framed ip"))
		})

		It("rejects a framed address that is not an IP", func() {
			req := valid
			req.FramedIP = "not-an-ip"
			Expect(req.Validate()).To(MatchError(disconnect.ErrIncomplete))
		})

		It("rejects an IPv6 framed address", func() {
			req := valid
			req.FramedIP = "2001:db8::1"
			Expect(req.Validate()).To(MatchError(disconnect.ErrIncomplete))
		})
	})

	Describe("UDPTransport", func() {
		var transport *disconnect.UDPTransport

		BeforeEach(func() {
			transport = disconnect.NewUDPTransport(zap.NewNop())
			transport.Timeout = 500 * time.Millisecond
		})

		It("returns OutcomeAcked on Disconnect-ACK", func() {
			port, stop := fakeNAS("testing123", radius.CodeDisconnectACK)
			defer stop()
			transport.Port = port

			outcome, err := transport.Send(context.Background(), "127.0.0.1", []byte("testing123"), valid)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(disconnect.OutcomeAcked))
		})

		It("returns OutcomeRejected on Disconnect-NAK", func() {
			port, stop := fakeNAS("testing123", radius.CodeDisconnectNAK)
			defer stop()
			transport.Port = port

			outcome, err := transport.Send(context.Background(), "127.0.0.1", []byte("testing123"), valid)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(disconnect.OutcomeRejected))
		})

		It("returns OutcomeRejected when the NAS never answers", func() {
			port, stop := fakeNAS("testing123", 0)
			defer stop()
			transport.Port = port

			outcome, err := transport.Send(context.Background(), "127.0.0.1", []byte("testing123"), valid)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(disconnect.OutcomeRejected))
		})

		It("rejects an incomplete request before sending", func() {
			req := valid
			req.SessionID = ""
			_, err := transport.Send(context.Background(), "127.0.0.1", []byte("testing123"), req)
			Expect(err).To(MatchError(disconnect.ErrIncomplete))
		})

		It("rejects a non-IPv4 framed address", func() {
			req := valid
			req.FramedIP = "not-an-ip"
			_, err := transport.Send(context.Background(), "127.0.0.1", []byte("testing123"), req)
			Expect(err).To(MatchError(disconnect.ErrIncomplete))
		})
	})

	Describe("SimulatedTransport", func() {
		It("answers deterministically and records the request", func() {
			transport := disconnect.NewSimulatedTransport()

			outcome, err := transport.Send(context.Background(), "10.0.0.1", []byte("s"), valid)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(disconnect.OutcomeSimulated))
			Expect(transport.Sent()).To(HaveLen(1))
			Expect(transport.Sent()[0].SessionID).To(Equal("8100000a"))
		})

		It("still rejects incomplete requests", func() {
			transport := disconnect.NewSimulatedTransport()
			_, err := transport.Send(context.Background(), "10.0.0.1", []byte("s"), disconnect.Request{})
			Expect(err).To(MatchError(disconnect.ErrIncomplete))
			Expect(transport.Sent()).To(BeEmpty())
		})

		It("can be configured to answer like a live NAS", func() {
			transport := disconnect.NewSimulatedTransport()
			transport.Result = disconnect.OutcomeAcked

			outcome, err := transport.Send(context.Background(), "10.0.0.1", []byte("s"), valid)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(disconnect.OutcomeAcked))
		})
	})
})
