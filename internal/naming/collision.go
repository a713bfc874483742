package naming

import (
	"log/slog"
	"strconv"
)

// classNames records which table claimed each class name of one snapshot.
type classNames struct {
	owners map[string]string
	logger *slog.Logger
}

func newClassNames(logger *slog.Logger) *classNames {
	return &classNames{owners: make(map[string]string), logger: logger}
}

// claim returns class for table, or class with the first free numeric suffix
// when another table already owns it.
func (c *classNames) claim(class, table string) string {
	owner, taken := c.owners[class]
	if !taken {
		c.owners[class] = table
		return class
	}

	for i := 2; ; i++ {
		candidate := class + strconv.Itoa(i)
		if _, taken := c.owners[candidate]; taken {
			continue
		}
		c.owners[candidate] = table
		c.logger.Warn("class name already taken, adding suffix",
			slog.String("class", class),
			slog.String("table", table),
			slog.String("owner_table", owner),
			slog.String("assigned", candidate),
		)
		return candidate
	}
}
