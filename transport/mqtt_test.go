package transport

import (
	"fmt"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mqttserver "github.com/mochi-co/mqtt/server"
	"github.com/mochi-co/mqtt/server/listeners"
	"github.com/stretchr/testify/require"
)

func TestNewMQTTRequiresBroker(t *testing.T) {
	_, err := NewMQTT(MQTTSettings{})
	require.Error(t, err)
}

func TestMQTTSubscribesWithPrefixAndDispatches(t *testing.T) {
	brokerURL := startMockBroker(t)

	m, err := NewMQTT(MQTTSettings{
		Broker:      brokerURL,
		ClientID:    "cswui-test",
		TopicPrefix: "csw/",
	}, WithReconnectInterval(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	opened := make(chan Event, 4)
	values := make(chan Event, 4)
	m.AddListener(EventOpen, func(ev Event) { opened <- ev })
	m.AddListener("epics://foo", func(ev Event) { values <- ev })

	if m.ReadyState() != Open {
		waitEvent(t, opened)
	}
	require.NoError(t, m.Subscribe("epics://foo"))
	require.NoError(t, m.Subscribe("epics://foo"))

	publisher := connectClient(t, brokerURL, "publisher")
	t.Cleanup(func() { publisher.Disconnect(250) })

	deadline := time.Now().Add(5 * time.Second)
	for {
		token := publisher.Publish("csw/epics://foo", 0, false, []byte(`{"value":42}`))
		require.True(t, token.WaitTimeout(time.Second))
		require.NoError(t, token.Error())
		select {
		case ev := <-values:
			require.Equal(t, "epics://foo", ev.Name)
			require.JSONEq(t, `{"value":42}`, string(ev.Data))
			require.Equal(t, []string{"epics://foo"}, m.Topics())
			require.NoError(t, m.Close())
			require.Equal(t, Closed, m.ReadyState())
			require.ErrorIs(t, m.Subscribe("epics://foo"), ErrClosed)
			return
		case <-time.After(100 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no message delivered through the broker")
		}
	}
}

func startMockBroker(t *testing.T) string {
	t.Helper()

	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))
	server := mqttserver.NewServer(nil)
	tcp := listeners.NewTCP("test", addr)
	require.NoError(t, server.AddListener(tcp, nil))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })

	require.NoError(t, waitForBroker(addr, 5*time.Second))
	return "tcp://" + addr
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitForBroker(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("broker at %s did not start", addr)
}

func connectClient(t *testing.T, brokerURL, clientID string) mqtt.Client {
	t.Helper()
	client := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID(clientID))
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second), "connect timeout")
	require.NoError(t, token.Error())
	return client
}
