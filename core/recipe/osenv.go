package recipe

import "os"

func lookupOSEnv(name string) (string, bool) {
	return os.LookupEnv(name)
}
