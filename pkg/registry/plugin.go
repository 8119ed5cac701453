package registry

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// pluginHandshake is the magic-cookie handshake every plugin binary must
// answer, grounded on the teacher's pkg/plugins/grpc handshakeConfig.
var pluginHandshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AGENTRUN_PLUGIN",
	MagicCookieValue: "agentrun_plugin_v1",
}

// PluginToolDescriptor is what a plugin process reports for one tool it
// exposes over the handshake.
type PluginToolDescriptor struct {
	Name        string
	Description string
	Tags        []string
}

// ToolPluginRPC is the interface a plugin binary implements. Unlike the
// teacher's LLM/Database/Embedder plugin types (which go over gRPC with
// generated stubs), a plain net/rpc plugin is sufficient here — one call in,
// one map out — so this package skips the protobuf layer go-plugin also
// supports.
type ToolPluginRPC interface {
	ListTools() ([]PluginToolDescriptor, error)
	Invoke(name string, args map[string]any) (map[string]any, error)
}

// toolPluginImpl satisfies goplugin.Plugin for the net/rpc transport.
type toolPluginImpl struct {
	Impl ToolPluginRPC
}

func (p *toolPluginImpl) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &toolPluginRPCServer{impl: p.Impl}, nil
}

func (p *toolPluginImpl) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &toolPluginRPCClient{client: c}, nil
}

type toolPluginRPCServer struct {
	impl ToolPluginRPC
}

func (s *toolPluginRPCServer) ListTools(_ struct{}, resp *[]PluginToolDescriptor) error {
	tools, err := s.impl.ListTools()
	*resp = tools
	return err
}

type invokeArgs struct {
	Name string
	Args map[string]any
}

func (s *toolPluginRPCServer) Invoke(req invokeArgs, resp *map[string]any) error {
	out, err := s.impl.Invoke(req.Name, req.Args)
	*resp = out
	return err
}

type toolPluginRPCClient struct {
	client *rpc.Client
}

func (c *toolPluginRPCClient) ListTools() ([]PluginToolDescriptor, error) {
	var resp []PluginToolDescriptor
	err := c.client.Call("Plugin.ListTools", struct{}{}, &resp)
	return resp, err
}

func (c *toolPluginRPCClient) Invoke(name string, args map[string]any) (map[string]any, error) {
	var resp map[string]any
	err := c.client.Call("Plugin.Invoke", invokeArgs{Name: name, Args: args}, &resp)
	return resp, err
}

// launchPlugin starts entry as a go-plugin subprocess and registers every
// tool it reports. Once the tools are registered the *goplugin.Client is
// kept alive until Registry.Close kills it, since every Run closure calls
// back into it on demand; launchPlugin kills it only when a setup step
// fails.
func (r *Registry) launchPlugin(ctx context.Context, m *PluginManifest) error {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: pluginHandshake,
		Plugins:         map[string]goplugin.Plugin{"tool": &toolPluginImpl{}},
		Cmd:             exec.Command(m.Entry),
		AllowedProtocols: []goplugin.Protocol{
			goplugin.ProtocolNetRPC,
		},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "agentrun-plugin",
			Level: hclog.Warn,
		}),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return fmt.Errorf("plugin %s: rpc client: %w", m.Name, err)
	}

	raw, err := rpcClient.Dispense("tool")
	if err != nil {
		client.Kill()
		return fmt.Errorf("plugin %s: dispense: %w", m.Name, err)
	}

	impl, ok := raw.(ToolPluginRPC)
	if !ok {
		client.Kill()
		return fmt.Errorf("plugin %s: does not implement ToolPluginRPC", m.Name)
	}

	descriptors, err := impl.ListTools()
	if err != nil {
		client.Kill()
		return fmt.Errorf("plugin %s: list tools: %w", m.Name, err)
	}

	for _, d := range descriptors {
		name := d.Name
		run := func(_ context.Context, args map[string]any) (map[string]any, error) {
			return impl.Invoke(name, args)
		}
		_ = r.Register(&ToolSpec{
			Name:        name,
			Description: d.Description,
			Tags:        d.Tags,
			Run:         run,
			Source:      "plugin:" + m.Name,
		})
	}

	r.mu.Lock()
	r.pluginClients = append(r.pluginClients, client)
	r.mu.Unlock()
	return nil
}

// closePlugins kills every plugin subprocess launched via launchPlugin.
func (r *Registry) closePlugins() {
	r.mu.Lock()
	clients := r.pluginClients
	r.pluginClients = nil
	r.mu.Unlock()

	for _, c := range clients {
		c.Kill()
	}
}
