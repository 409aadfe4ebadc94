package repository

// CSVRevisionDir returns the directory holding revision rev of s.
func CSVRevisionDir(s *CSVStore, rev uint64) string { return s.revDir(rev) }

// FailCSVWrite makes s return err before staging the named file.
func FailCSVWrite(s *CSVStore, name string, err error) {
	s.beforeWrite = func(n string) error {
		if n == name {
			return err
		}
		return nil
	}
}
