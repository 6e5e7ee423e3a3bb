package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/nacos"
)

const orderHubService = "order-hub"

// options 是所有子命令共享的全局参数
type options struct {
	server       string
	nacosAddrs   string
	nacosGroup   string
	sequencePath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "orderctl",
		Short:         "Operate the storefront order hub",
		Long:          "orderctl issues order ids, places orders, drives picker transitions and shows the live order board.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8080", "order hub base URL")
	cmd.PersistentFlags().StringVar(&opts.nacosAddrs, "nacos", "", "discover the order hub through nacos (ip:port,...)")
	cmd.PersistentFlags().StringVar(&opts.nacosGroup, "nacos-group", "DEFAULT_GROUP", "nacos group of the order hub")
	cmd.PersistentFlags().StringVar(&opts.sequencePath, "sequence", "data/order-id", "sequence store file")

	cmd.AddCommand(newNextIDCmd(opts))
	cmd.AddCommand(newShowIDCmd(opts))
	cmd.AddCommand(newCheckoutCmd(opts))
	cmd.AddCommand(newPickCmd(opts))
	cmd.AddCommand(newTrackCmd(opts))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}

// baseURL 返回 order hub 地址，配置了 nacos 时通过服务发现获取
func (o *options) baseURL() (string, error) {
	if o.nacosAddrs == "" {
		return o.server, nil
	}
	client, err := nacos.NewNacosClient(o.nacosAddrs, "", o.nacosGroup)
	if err != nil {
		return "", err
	}
	defer client.Close()
	ip, port, err := client.DiscoverServiceInstance(orderHubService)
	if err != nil {
		return "", err
	}
	return "http://" + ip + ":" + strconv.Itoa(port), nil
}

func (o *options) httpClient() (*httpclient.Client, error) {
	base, err := o.baseURL()
	if err != nil {
		return nil, err
	}
	return httpclient.NewClient(otel.Tracer("orderctl"), base), nil
}

// websocketURL 把 http(s) 地址换成 ws(s) 地址
func (o *options) websocketURL(role string) (string, error) {
	base, err := o.baseURL()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u = u.JoinPath("ws")
	u.RawQuery = url.Values{"role": {role}}.Encode()
	return u.String(), nil
}
