package zmachine

import "github.com/olson-dan/gozork/zobject"

// showStatus publishes a fresh status bar. The game keeps the current
// location's object id in global 16 and either score and turns or the time
// of day in globals 17 and 18, depending on the header's flag.
func (z *ZMachine) showStatus() error {
	location, err := z.readVariable(globalVariableStart)
	if err != nil {
		return err
	}
	left, err := z.readVariable(globalVariableStart + 1)
	if err != nil {
		return err
	}
	right, err := z.readVariable(globalVariableStart + 2)
	if err != nil {
		return err
	}

	status := StatusBar{TimeBased: z.Core.StatusBarTimeBased}
	if location != 0 {
		obj, err := zobject.GetObject(&z.Core, location)
		if err != nil {
			return err
		}
		status.PlaceName = obj.Name
	}
	if status.TimeBased {
		status.Hours = int(left)
		status.Minutes = int(right)
	} else {
		status.Score = int(int16(left))
		status.Moves = int(right)
	}

	z.outputChannel <- status

	return nil
}
