package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	tlsDir      = "tls"
	tlsCertFile = "cert.pem"
)

// serverUrl prefers the flag, then the CHAND_URL env var.
func serverUrl(ctx *cli.Context) string {
	if ctx.IsSet(urlFlagName) {
		return ctx.String(urlFlagName)
	}
	if u := viper.GetString(urlFlagName); u != "" {
		return u
	}
	return ctx.String(urlFlagName)
}

func getAdminClient(ctx *cli.Context) (*chandv1.AdminServiceClient, func(), error) {
	u, err := url.Parse(serverUrl(ctx))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid url: %s", err)
	}

	creds := insecure.NewCredentials()
	if u.Scheme == "https" {
		tlsCertPath := filepath.Join(ctx.String(datadirFlagName), tlsDir, tlsCertFile)
		tlsConfig, err := getTLSConfig(tlsCertPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get tls config: %s", err)
		}
		creds = credentials.NewTLS(tlsConfig)
	}

	conn, err := grpc.NewClient(u.Host, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		// nolint
		conn.Close()
	}
	return chandv1.NewAdminServiceClient(conn), closeFn, nil
}

func getTLSConfig(path string) (*tls.Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	caCertPool := x509.NewCertPool()
	if ok := caCertPool.AppendCertsFromPEM(buf); !ok {
		return nil, fmt.Errorf("failed to parse tls cert")
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    caCertPool,
	}, nil
}

func printJSON(resp any) error {
	buf, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
