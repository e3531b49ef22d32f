package config

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultPort is the sample broadcaster's listening port.
const DefaultPort = 10811

// ParsePort parses a user supplied port. Anything that is not a valid TCP
// port number yields DefaultPort.
func ParsePort(s string) int {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !validPort(p) {
		logrus.WithField("input", s).Warnf("invalid port, using default %d", DefaultPort)
		return DefaultPort
	}
	return p
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
