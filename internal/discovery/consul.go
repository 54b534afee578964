package discovery

import (
	"fmt"
	"net"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type ConsulClient struct {
	client *api.Client
	logger *zap.Logger
}

type ServiceConfig struct {
	Name string
	ID   string
	Port int
	Tags []string

	// Address is advertised to Consul. Empty means the outbound IP.
	Address string
}

func NewConsulClient(addr string, logger *zap.Logger) (*ConsulClient, error) {
	config := api.DefaultConfig()
	config.Address = addr

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", err)
	}

	logger.Info("Connected to Consul", zap.String("addr", addr))

	return &ConsulClient{client: client, logger: logger}, nil
}

// getOutboundIP gets the preferred outbound IP of this machine
func getOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

// Register registers a service with an HTTP health check against /health.
func (c *ConsulClient) Register(cfg ServiceConfig) error {
	hostIP := cfg.Address
	if hostIP == "" {
		hostIP = getOutboundIP()
	}

	registration := &api.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Port:    cfg.Port,
		Address: hostIP,
		Tags:    cfg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostIP, cfg.Port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}

	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.logger.Info("Registered service",
		zap.String("name", cfg.Name),
		zap.String("id", cfg.ID),
		zap.String("address", hostIP),
		zap.Int("port", cfg.Port))
	return nil
}

// Deregister removes a service from Consul
func (c *ConsulClient) Deregister(serviceID string) error {
	if err := c.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	c.logger.Info("Deregistered service", zap.String("id", serviceID))
	return nil
}

// GetServiceURL returns the base URL of the first healthy instance.
func (c *ConsulClient) GetServiceURL(serviceName string) (string, error) {
	services, _, err := c.client.Health().Service(serviceName, "", true, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get service: %w", err)
	}

	if len(services) == 0 {
		return "", fmt.Errorf("no healthy instances of %s found", serviceName)
	}

	service := services[0].Service
	address := service.Address
	if address == "" {
		address = services[0].Node.Address
	}
	if address == "" {
		address = "localhost"
	}

	return fmt.Sprintf("http://%s", net.JoinHostPort(address, fmt.Sprint(service.Port))), nil
}

// Announce registers svc when enabled and returns a function that undoes the
// registration. Failures are logged and the service runs unregistered.
func Announce(enabled bool, addr string, svc ServiceConfig, logger *zap.Logger) func() {
	if !enabled {
		logger.Info("Consul registration disabled")
		return func() {}
	}

	consul, err := NewConsulClient(addr, logger)
	if err != nil {
		logger.Warn("Consul unavailable, running unregistered", zap.Error(err))
		return func() {}
	}
	if err := consul.Register(svc); err != nil {
		logger.Warn("Consul registration failed", zap.Error(err))
		return func() {}
	}

	return func() {
		if err := consul.Deregister(svc.ID); err != nil {
			logger.Warn("Consul deregistration failed", zap.Error(err))
		}
	}
}
