package strand

// Database is a handle to one database within an account.
type Database struct {
	client *Client
	id     string
}

func (d *Database) ID() string {
	return d.id
}

// Container returns a handle to the named container. No network call
// is made until the handle is used.
func (d *Database) Container(id string) *Container {
	return &Container{client: d.client, database: d, id: id}
}
