package config

// Table returns the configured table name or the default one
func (c DynamoDBConfig) Table() string {
	if c.TableName == "" {
		return "billingcore"
	}
	return c.TableName
}

// OwnerIndex returns the configured owner GSI name or the default one
func (c DynamoDBConfig) OwnerIndex() string {
	if c.OwnerIndexName == "" {
		return "owner-index"
	}
	return c.OwnerIndexName
}
