package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/rdbms/shared"
)

const connectionsKey = "connections"

// ConnectionDetails looks up the DSN for connectionName, ignoring case, and parses it.
// Return an error if the connection is not configured.
func (s *Settings) ConnectionDetails(connectionName string) (shared.ConnectionDetails, error) {
	for name, dsn := range s.Connections {
		if strings.EqualFold(name, connectionName) {
			return shared.NewConnectionDetails(connectionName, dsn)
		}
	}
	return shared.ConnectionDetails{}, fmt.Errorf("connection %q is not configured: use 'config connections add' or set %v",
		connectionName, helper.GetDsnEnvVarName(connectionName))
}

// GetConnections returns the connections saved in the file.
func (c *File) GetConnections() (map[string]string, error) {
	conns := make(map[string]string)
	if err := c.Get(connectionsKey, &conns); err != nil {
		if errors.As(err, &KeyNotFoundError{}) && len(conns) == 0 {
			return conns, nil
		}
		return nil, err
	}
	return conns, nil
}

// GetConnectionDetails fetches the named connection from the file.
// If the connection is not found then an error is produced.
func (c *File) GetConnectionDetails(connectionName string) (shared.ConnectionDetails, error) {
	conns, err := c.GetConnections()
	if err != nil {
		return shared.ConnectionDetails{}, err
	}
	dsn, ok := conns[connectionName]
	if !ok {
		return shared.ConnectionDetails{}, KeyNotFoundError{configFile: c.FullPath, key: connectionsKey + "." + connectionName}
	}
	return shared.NewConnectionDetails(connectionName, dsn)
}

// ConnectionNames returns the saved connection names in sorted order.
func (c *File) ConnectionNames() ([]string, error) {
	conns, err := c.GetConnections()
	if err != nil {
		return nil, err
	}
	retval := make([]string, 0, len(conns))
	for k := range conns {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval, nil
}

// AddConnection validates dsn and saves it under connectionName.
// An existing connection is only replaced when force is set.
func (c *File) AddConnection(connectionName string, dsn string, force bool) error {
	if connectionName == "" {
		return fmt.Errorf("please supply a connection name")
	}
	if _, err := shared.NewConnectionDetails(connectionName, dsn); err != nil {
		return err
	}
	conns, err := c.GetConnections()
	if err != nil {
		return err
	}
	if _, exists := conns[connectionName]; exists && !force {
		return fmt.Errorf("connection %q exists, use force to update the connection or remove it first", connectionName)
	}
	conns[connectionName] = dsn
	return c.Set(connectionsKey, conns)
}

// RemoveConnection deletes connectionName from the file.
func (c *File) RemoveConnection(connectionName string) error {
	conns, err := c.GetConnections()
	if err != nil {
		return err
	}
	if _, exists := conns[connectionName]; !exists {
		return KeyNotFoundError{configFile: c.FullPath, key: connectionsKey + "." + connectionName}
	}
	delete(conns, connectionName)
	if len(conns) == 0 {
		return c.Delete(connectionsKey)
	}
	return c.Set(connectionsKey, conns)
}
